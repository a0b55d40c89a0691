package compiler

import (
	"fmt"
	"time"
)

// Stage enumerates the compiler pipeline's phases in execution order.
type Stage int

const (
	StageParse Stage = iota
	StageValidate
	StageFactor
	StageExpand
	StageRegister
	StageIndex
	StageFinalize
)

func (s Stage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StageValidate:
		return "validate"
	case StageFactor:
		return "factor"
	case StageExpand:
		return "expand"
	case StageRegister:
		return "register"
	case StageIndex:
		return "index"
	case StageFinalize:
		return "finalize"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Listener observes compiler stage boundaries, e.g. for logging or metrics.
// CompileWithListener is a no-op without one; Compile never reports stages
// at all.
type Listener interface {
	StageStart(stage Stage)
	StageComplete(stage Stage, duration time.Duration, metrics map[string]int)
}

// noopListener discards every event.
type noopListener struct{}

func (noopListener) StageStart(Stage)                                  {}
func (noopListener) StageComplete(Stage, time.Duration, map[string]int) {}

func timeStage(l Listener, s Stage, metrics func() map[string]int, fn func() error) error {
	l.StageStart(s)
	start := time.Now()
	err := fn()
	l.StageComplete(s, time.Since(start), metrics())
	return err
}
