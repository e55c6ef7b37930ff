package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/model"
)

func pool(kind engine.Kind, n int) []model.Question {
	out := make([]model.Question, n)
	for i := range out {
		out[i] = model.Question{ID: uuid.New(), Kind: kind, OrderNum: i}
	}
	return out
}

func reverse(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

func TestDealQuestions(t *testing.T) {
	tests := []struct {
		name      string
		setting   model.ExamSetting
		mcq, tf   int
		wantMCQ   int
		wantTF    int
		wantFirst int // OrderNum of the first question dealt
	}{
		{"configured counts", model.ExamSetting{MCQCount: 3, TrueFalseCount: 2}, 5, 4, 3, 2, 0},
		{"zero counts use the whole bank", model.ExamSetting{}, 5, 4, 5, 4, 0},
		{"short bank deals what it has", model.ExamSetting{MCQCount: 10, TrueFalseCount: 1}, 2, 4, 2, 1, 0},
		{"randomized pools are shuffled", model.ExamSetting{MCQCount: 2, RandomizeQuestions: true}, 5, 3, 2, 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dealQuestions(&tt.setting, pool(engine.KindSingleChoice, tt.mcq), pool(engine.KindBoolean, tt.tf), reverse)

			var mcq, tf int
			for i, q := range got {
				switch q.Kind {
				case engine.KindSingleChoice:
					if tf > 0 {
						t.Fatalf("single choice question at %d after a boolean one", i)
					}
					mcq++
				case engine.KindBoolean:
					tf++
				}
			}
			if mcq != tt.wantMCQ || tf != tt.wantTF {
				t.Fatalf("dealt %d mcq + %d tf, want %d + %d", mcq, tf, tt.wantMCQ, tt.wantTF)
			}
			if len(got) > 0 && got[0].OrderNum != tt.wantFirst {
				t.Errorf("first question order %d, want %d", got[0].OrderNum, tt.wantFirst)
			}
		})
	}
}
