package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Per-student availability tags computed at listing time.
const (
	ExerciseStatusSubmitted = "submitted"
	ExerciseStatusPending   = "pending"
	ExerciseStatusExpired   = "expired"
	ExerciseStatusAvailable = "available"
)

type Exercise struct {
	ID              int64  `db:"id" json:"id"`
	TeacherID       int64  `db:"teacher_id" json:"teacher_id"`
	Title           string `db:"title" json:"title" validate:"required"`
	Content         string `db:"content" json:"content" validate:"required"`
	DifficultyLevel int    `db:"difficulty_level" json:"difficulty_level" validate:"min=1,max=3"`
	StartTime       *int64 `db:"start_time" json:"start_time,omitempty"`
	EndTime         *int64 `db:"end_time" json:"end_time,omitempty"`
	CreatedAt       int64  `db:"created_at" json:"created_at"`
	IsActive        bool   `db:"is_active" json:"is_active"`
}

func (e *Exercise) Validate() error {
	validate := validator.New()
	if err := validate.Struct(e); err != nil {
		return err
	}
	if e.StartTime != nil && e.EndTime != nil && *e.StartTime > *e.EndTime {
		return fmt.Errorf("start_time must not be after end_time")
	}
	return nil
}

// AvailableExercise decorates an exercise with the per-student status tag
// and the teacher's display name.
type AvailableExercise struct {
	Exercise
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	Status      string `db:"status" json:"status"`
}
