package models

import (
	"github.com/go-playground/validator/v10"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

type User struct {
	ID        int64   `db:"id" json:"id"`
	Username  string  `db:"username" json:"username" validate:"required,min=2,max=64"`
	Password  string  `db:"password" json:"-"`
	Email     *string `db:"email" json:"email,omitempty" validate:"omitempty,email"`
	Role      string  `db:"role" json:"role" validate:"required,oneof=student teacher"`
	RealName  string  `db:"real_name" json:"real_name"`
	StudentID *string `db:"student_id" json:"student_id,omitempty"`
	ClassName *string `db:"class_name" json:"class_name,omitempty"`
	CreatedAt int64   `db:"created_at" json:"created_at"`
	LastLogin *int64  `db:"last_login" json:"last_login,omitempty"`
}

func (u *User) Validate() error {
	validate := validator.New()
	return validate.Struct(u)
}

// UserOverview is the teacher-facing user listing row: user plus
// submission activity pulled in by the store.
type UserOverview struct {
	User
	ExerciseCount  int64  `db:"exercise_count" json:"exercise_count"`
	LastSubmitTime *int64 `db:"last_submit_time" json:"last_submit_time,omitempty"`
}
