package reliability

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type ChainBreakKind string

const (
	BreakChecksumMismatch ChainBreakKind = "checksum_mismatch"
	BreakSequenceGap      ChainBreakKind = "sequence_gap"
	BreakUnexpectedFrom   ChainBreakKind = "unexpected_from"
	BreakMissingFrom      ChainBreakKind = "missing_from"
	BreakFromMismatch     ChainBreakKind = "from_mismatch"
)

// ChainLink is what the chain check needs from one log entry.
type ChainLink struct {
	LogID         string
	Sequence      int64
	FromTotal     *decimal.Decimal
	ToTotal       decimal.Decimal
	ChecksumValid bool
}

type ChainBreak struct {
	LogID    string
	Sequence int64
	Kind     ChainBreakKind
	Detail   string
}

// CheckChain walks links in sequence order. The first entry must start at sequence 1
// with no from total; every later entry must continue the sequence and start from the
// previous entry's to total.
func CheckChain(links []ChainLink) []ChainBreak {
	var breaks []ChainBreak
	for i, link := range links {
		if !link.ChecksumValid {
			breaks = append(breaks, ChainBreak{LogID: link.LogID, Sequence: link.Sequence, Kind: BreakChecksumMismatch, Detail: "stored checksum does not match content"})
		}

		if i == 0 {
			if link.Sequence != 1 {
				breaks = append(breaks, ChainBreak{LogID: link.LogID, Sequence: link.Sequence, Kind: BreakSequenceGap, Detail: fmt.Sprintf("first sequence is %d, want 1", link.Sequence)})
			}
			if link.FromTotal != nil {
				breaks = append(breaks, ChainBreak{LogID: link.LogID, Sequence: link.Sequence, Kind: BreakUnexpectedFrom, Detail: "first entry carries from_total_score " + FormatTotal(*link.FromTotal)})
			}
			continue
		}

		prev := links[i-1]
		if link.Sequence != prev.Sequence+1 {
			breaks = append(breaks, ChainBreak{LogID: link.LogID, Sequence: link.Sequence, Kind: BreakSequenceGap, Detail: fmt.Sprintf("sequence %d follows %d", link.Sequence, prev.Sequence)})
		}
		switch {
		case link.FromTotal == nil:
			breaks = append(breaks, ChainBreak{LogID: link.LogID, Sequence: link.Sequence, Kind: BreakMissingFrom, Detail: "from_total_score is null after the first entry"})
		case !link.FromTotal.Equal(prev.ToTotal):
			breaks = append(breaks, ChainBreak{
				LogID:    link.LogID,
				Sequence: link.Sequence,
				Kind:     BreakFromMismatch,
				Detail:   fmt.Sprintf("from_total_score %s, previous to_total_score %s", FormatTotal(*link.FromTotal), FormatTotal(prev.ToTotal)),
			})
		}
	}
	return breaks
}
