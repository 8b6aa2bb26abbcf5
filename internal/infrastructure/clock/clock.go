package clock

import (
	"time"

	"reliability/internal/ports"
)

// System reads the wall clock in UTC.
type System struct{}

var _ ports.Clock = System{}

func (System) Now() time.Time {
	return time.Now().UTC()
}
