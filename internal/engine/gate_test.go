package engine

import (
	"errors"
	"testing"
	"time"
)

func TestEvaluationGateSubmit(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		score      int
		credential string
		want       error
	}{
		{name: "lower bound", score: 0, credential: "pin", want: nil},
		{name: "upper bound", score: 100, credential: "pin", want: nil},
		{name: "above range", score: 150, credential: "pin", want: ErrScoreOutOfRange},
		{name: "below range", score: -1, credential: "pin", want: ErrScoreOutOfRange},
		{name: "empty credential", score: 50, credential: "", want: ErrCredentialRequired},
		{name: "blank credential", score: 50, credential: "   ", want: ErrCredentialRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var g EvaluationGate
			ev, err := g.Submit(tc.score, tc.credential, at)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.want != nil {
				if g.Locked() {
					t.Fatal("rejected submission must not lock")
				}
				return
			}
			if !ev.Accepted || ev.EvaluatorScore != tc.score || !ev.AcceptedAt.Equal(at) {
				t.Fatalf("unexpected evaluation: %+v", ev)
			}
		})
	}
}

func TestEvaluationGateLocksOnce(t *testing.T) {
	var g EvaluationGate
	if _, err := g.Submit(72, "pin", time.Now()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, score := range []int{0, 72, 150} {
		if _, err := g.Submit(score, "pin", time.Now()); !errors.Is(err, ErrAlreadyLocked) {
			t.Fatalf("score %d: expected ErrAlreadyLocked, got %v", score, err)
		}
	}
	ev, ok := g.Evaluation()
	if !ok || ev.EvaluatorScore != 72 {
		t.Fatalf("evaluation changed: %+v", ev)
	}
}
