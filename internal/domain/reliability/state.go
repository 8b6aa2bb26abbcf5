package reliability

import "github.com/shopspring/decimal"

type EntityState string

const (
	StateUnscored EntityState = "unscored"
	StateScored   EntityState = "scored"
)

// Transition names why a new audit log entry is written.
type Transition string

const (
	TransitionNone        Transition = ""
	TransitionInitial     Transition = "initial"
	TransitionRecompute   Transition = "recompute"
	TransitionVersionBump Transition = "version_bump"
)

// Observed is the stored summary state an entity is compared against.
type Observed struct {
	Exists         bool
	TotalScore     decimal.Decimal
	Snapshot       string
	ScoringVersion string
}

func (o Observed) State() EntityState {
	if !o.Exists {
		return StateUnscored
	}
	return StateScored
}

// NextTransition decides whether a freshly computed state must be recorded.
// An unchanged total, snapshot and scoring version yields TransitionNone.
func NextTransition(prev Observed, total decimal.Decimal, snapshot string, scoringVersion string) Transition {
	switch {
	case !prev.Exists:
		return TransitionInitial
	case prev.ScoringVersion != scoringVersion:
		return TransitionVersionBump
	case !prev.TotalScore.Equal(total), prev.Snapshot != snapshot:
		return TransitionRecompute
	default:
		return TransitionNone
	}
}
