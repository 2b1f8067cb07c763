package models

// AttendanceStats is a per-student per-day rollup, derived from
// exercise_records and rebuildable from them.
type AttendanceStats struct {
	StudentID          int64  `db:"student_id" json:"student_id"`
	Date               string `db:"date" json:"date"`
	ExercisesCompleted int    `db:"exercises_completed" json:"exercises_completed"`
	TotalScore         int    `db:"total_score" json:"total_score"`
	BestScore          int    `db:"best_score" json:"best_score"`
	UpdatedAt          int64  `db:"updated_at" json:"updated_at"`
}

// unique_together is handled on DB level:
/*
CREATE TABLE attendance_stats (
    student_id BIGINT NOT NULL,
    date TEXT NOT NULL,
    exercises_completed INTEGER NOT NULL DEFAULT 0,
    total_score INTEGER NOT NULL DEFAULT 0,
    best_score INTEGER NOT NULL DEFAULT 0,
    updated_at BIGINT NOT NULL,
    CONSTRAINT attendance_stats_pkey PRIMARY KEY (student_id, date)
);
*/

type StudentStats struct {
	TotalExercises int64   `db:"total_exercises" json:"total_exercises"`
	AvgScore       float64 `db:"avg_score" json:"avg_score"`
	MaxScore       int     `db:"max_score" json:"max_score"`
	ActiveDays     int64   `db:"active_days" json:"active_days"`
}

// ClassStatRow is one student's aggregate within a teacher's class stats.
type ClassStatRow struct {
	StudentID      int64   `db:"student_id" json:"student_id"`
	Username       string  `db:"username" json:"username"`
	RealName       string  `db:"real_name" json:"real_name"`
	ClassName      *string `db:"class_name" json:"class_name,omitempty"`
	TotalExercises int64   `db:"total_exercises" json:"total_exercises"`
	AvgScore       float64 `db:"avg_score" json:"avg_score"`
	MaxScore       int     `db:"max_score" json:"max_score"`
	ActiveDays     int64   `db:"active_days" json:"active_days"`
}
