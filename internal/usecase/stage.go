package usecase

import "fmt"

// Stage is a step of one pipeline execution.
type Stage int

const (
	StageNotStarted Stage = iota
	StageFetching
	StageProcessing
	StagePersisting
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageNotStarted:
		return "not_started"
	case StageFetching:
		return "fetching"
	case StageProcessing:
		return "processing"
	case StagePersisting:
		return "persisting"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Event drives stage transitions.
type Event int

const (
	EventStart Event = iota
	EventFetched
	EventProcessed
	EventCommitted
	EventFail
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventFetched:
		return "fetched"
	case EventProcessed:
		return "processed"
	case EventCommitted:
		return "committed"
	case EventFail:
		return "fail"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

var transitions = map[Stage]map[Event]Stage{
	StageNotStarted: {EventStart: StageFetching},
	StageFetching:   {EventFetched: StageProcessing},
	StageProcessing: {EventProcessed: StagePersisting},
	StagePersisting: {EventCommitted: StageCompleted},
}

// Transition returns the stage reached from s on e. EventFail leads to StageFailed
// from any non-terminal stage; anything not in the table is an error.
func Transition(s Stage, e Event) (Stage, error) {
	if s.Terminal() {
		return s, fmt.Errorf("stage %s is terminal, got %s", s, e)
	}
	if e == EventFail {
		return StageFailed, nil
	}
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("no transition from %s on %s", s, e)
}
