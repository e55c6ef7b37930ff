package model

import "time"

// ExamSetting holds the exam parameters of one category.
type ExamSetting struct {
	Category           string    `json:"category"`
	DurationMinutes    int       `json:"duration_minutes"`
	PassingScore       int       `json:"passing_score"`
	MCQCount           int       `json:"mcq_count"`
	TrueFalseCount     int       `json:"true_false_count"`
	RandomizeQuestions bool      `json:"randomize_questions"`
	ShowResults        bool      `json:"show_results"`
	AllowRetake        bool      `json:"allow_retake"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// QuestionCount is the number of questions a paper of this category holds.
func (s *ExamSetting) QuestionCount() int {
	return s.MCQCount + s.TrueFalseCount
}

// UpsertExamSettingRequest is the payload for saving a category's settings.
type UpsertExamSettingRequest struct {
	DurationMinutes    int  `json:"duration_minutes" binding:"required,min=1,max=600"`
	PassingScore       int  `json:"passing_score" binding:"min=0,max=100"`
	MCQCount           int  `json:"mcq_count" binding:"min=0,max=500"`
	TrueFalseCount     int  `json:"true_false_count" binding:"min=0,max=500"`
	RandomizeQuestions bool `json:"randomize_questions"`
	ShowResults        bool `json:"show_results"`
	AllowRetake        bool `json:"allow_retake"`
}
