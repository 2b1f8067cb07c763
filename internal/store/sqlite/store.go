package sqlite

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shrimpsizemoose/uttal/internal/models"
	"github.com/shrimpsizemoose/uttal/internal/store"
)

type SQLiteStore struct {
	store.BaseStore
}

func NewSQLiteStore(dsn, migrationsDir string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			return query
		},
	}}

	if migrationsDir != "" {
		if err := s.ApplyMigrations(migrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	return s, nil
}

func (s *SQLiteStore) ApplyMigrations(dir string) error {
	return s.BaseStore.ApplyMigrations(dir, translateToSQLite)
}

// translateToSQLite converts Postgres SQL to SQLite dialect. Replacements
// are ordered so longer tokens win over their substrings.
func translateToSQLite(sql string) string {
	replacements := []struct {
		from string
		to   string
	}{
		{"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT"},
		{"BIGSERIAL", "INTEGER"},
		{"BIGINT", "INTEGER"},
		{"GREATEST", "MAX"},
		{"TRUE", "1"},
		{"FALSE", "0"},
		{"now()", "CURRENT_TIMESTAMP"},
	}
	result := sql
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.from, r.to)
	}
	return result
}

func (s *SQLiteStore) CreateUser(user *models.User) error {
	res, err := s.DB.Exec(`
		INSERT INTO users (username, password, email, role, real_name, student_id, class_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.Username,
		user.Password,
		user.Email,
		user.Role,
		user.RealName,
		user.StudentID,
		user.ClassName,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateExercise(exercise *models.Exercise) error {
	res, err := s.DB.Exec(`
		INSERT INTO exercises (teacher_id, title, content, difficulty_level, start_time, end_time, created_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		exercise.TeacherID,
		exercise.Title,
		exercise.Content,
		exercise.DifficultyLevel,
		exercise.StartTime,
		exercise.EndTime,
		exercise.CreatedAt,
		exercise.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create exercise: %w", err)
	}

	exercise.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get exercise id: %w", err)
	}
	return nil
}

// SubmitRecord inserts the record and rolls the day's attendance stats
// forward inside one transaction.
func (s *SQLiteStore) SubmitRecord(record *models.ExerciseRecord) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO exercise_records (
			student_id, exercise_id, audio_path, session_id,
			score, accuracy, fluency, integrity,
			ai_feedback, feedback_type, attempt_count,
			status, submit_time, submit_day
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.StudentID,
		record.ExerciseID,
		record.AudioPath,
		record.SessionID,
		record.Score,
		record.Accuracy,
		record.Fluency,
		record.Integrity,
		record.AIFeedback,
		record.FeedbackType,
		record.AttemptCount,
		record.Status,
		record.SubmitTime,
		record.SubmitDay,
	)
	if err != nil {
		return fmt.Errorf("failed to create exercise record: %w", err)
	}

	record.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get record id: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO attendance_stats (student_id, date, exercises_completed, total_score, best_score, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE SET
			exercises_completed = attendance_stats.exercises_completed + 1,
			total_score = attendance_stats.total_score + excluded.total_score,
			best_score = MAX(attendance_stats.best_score, excluded.best_score),
			updated_at = excluded.updated_at
	`,
		record.StudentID,
		record.SubmitDay,
		record.Score,
		record.Score,
		record.SubmitTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance stats: %w", err)
	}

	return tx.Commit()
}
