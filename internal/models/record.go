package models

const (
	RecordStatusSubmitted = "submitted"
	RecordStatusApproved  = "approved"
	RecordStatusRejected  = "rejected"
)

const (
	FeedbackTypeAI      = "ai"
	FeedbackTypeTeacher = "teacher"
	FeedbackTypeBoth    = "both"
)

// ExerciseRecord is one submitted attempt at an exercise. The student owns
// creation; reviewer_id and reviewed_at are set together by a teacher only.
type ExerciseRecord struct {
	ID              int64   `db:"id" json:"id"`
	StudentID       int64   `db:"student_id" json:"student_id"`
	ExerciseID      int64   `db:"exercise_id" json:"exercise_id"`
	AudioPath       *string `db:"audio_path" json:"audio_path,omitempty"`
	SessionID       string  `db:"session_id" json:"session_id"`
	Score           int     `db:"score" json:"score"`
	Accuracy        float64 `db:"accuracy" json:"accuracy"`
	Fluency         float64 `db:"fluency" json:"fluency"`
	Integrity       float64 `db:"integrity" json:"integrity"`
	AIFeedback      *string `db:"ai_feedback" json:"ai_feedback,omitempty"`
	TeacherFeedback *string `db:"teacher_feedback" json:"teacher_feedback,omitempty"`
	FeedbackType    string  `db:"feedback_type" json:"feedback_type"`
	AttemptCount    int     `db:"attempt_count" json:"attempt_count"`
	Status          string  `db:"status" json:"status"`
	SubmitTime      int64   `db:"submit_time" json:"submit_time"`
	SubmitDay       string  `db:"submit_day" json:"submit_day"`
	ReviewerID      *int64  `db:"reviewer_id" json:"reviewer_id,omitempty"`
	ReviewedAt      *int64  `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// RecordWithExercise is the student-facing history row.
type RecordWithExercise struct {
	ExerciseRecord
	Title           string `db:"title" json:"title"`
	ExerciseContent string `db:"exercise_content" json:"exercise_content"`
}

// RecordWithStudent is the teacher-facing row for review queues and
// per-exercise listings.
type RecordWithStudent struct {
	ExerciseRecord
	Username      string  `db:"username" json:"username"`
	RealName      string  `db:"real_name" json:"real_name"`
	ClassName     *string `db:"class_name" json:"class_name,omitempty"`
	ExerciseTitle string  `db:"exercise_title" json:"exercise_title"`
}

// RecordWithReviewer is the student feedback listing row.
type RecordWithReviewer struct {
	ExerciseRecord
	ExerciseTitle string  `db:"exercise_title" json:"exercise_title"`
	TeacherName   *string `db:"teacher_name" json:"teacher_name,omitempty"`
}
