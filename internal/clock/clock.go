package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts the wall clock so day boundaries and trial windows can be
// driven from tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns the process wall clock.
func New() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
