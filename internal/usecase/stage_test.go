package usecase

import "testing"

func TestTransitionHappyPath(t *testing.T) {
	t.Parallel()

	stage := StageNotStarted
	for _, e := range []Event{EventStart, EventFetched, EventProcessed, EventCommitted} {
		next, err := Transition(stage, e)
		if err != nil {
			t.Fatalf("transition %s on %s: %v", stage, e, err)
		}
		stage = next
	}
	if stage != StageCompleted {
		t.Fatalf("expected completed, got %s", stage)
	}
}

func TestTransitionFailFromEveryNonTerminalStage(t *testing.T) {
	t.Parallel()

	for _, s := range []Stage{StageNotStarted, StageFetching, StageProcessing, StagePersisting} {
		next, err := Transition(s, EventFail)
		if err != nil || next != StageFailed {
			t.Fatalf("%s: expected failed, got %s (%v)", s, next, err)
		}
	}
}

func TestTransitionRejectsInvalidMoves(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from Stage
		on   Event
	}{
		{StageNotStarted, EventCommitted},
		{StageFetching, EventProcessed},
		{StageProcessing, EventFetched},
		{StageCompleted, EventFail},
		{StageFailed, EventStart},
	}
	for _, tc := range cases {
		next, err := Transition(tc.from, tc.on)
		if err == nil {
			t.Fatalf("expected error for %s on %s, got %s", tc.from, tc.on, next)
		}
		if next != tc.from {
			t.Fatalf("stage must not change on invalid transition, got %s", next)
		}
	}
}
