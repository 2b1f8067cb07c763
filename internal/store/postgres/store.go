package postgres

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/shrimpsizemoose/uttal/internal/models"
	"github.com/shrimpsizemoose/uttal/internal/store"
)

type PostgresStore struct {
	store.BaseStore
}

func NewPostgresStore(dsn, migrationsDir string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{BaseStore: store.BaseStore{
		DB: db,
		Converter: func(query string) string {
			out := query
			for i := 1; strings.Contains(out, "?"); i++ {
				out = strings.Replace(out, "?", fmt.Sprintf("$%d", i), 1)
			}
			return out
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

func (s *PostgresStore) ApplyMigrations(dir string) error {
	return s.BaseStore.ApplyMigrations(dir, nil)
}

func (s *PostgresStore) CreateUser(user *models.User) error {
	err := s.DB.QueryRowx(`
		INSERT INTO users (username, password, email, role, real_name, student_id, class_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		user.Username,
		user.Password,
		user.Email,
		user.Role,
		user.RealName,
		user.StudentID,
		user.ClassName,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateExercise(exercise *models.Exercise) error {
	err := s.DB.QueryRowx(`
		INSERT INTO exercises (teacher_id, title, content, difficulty_level, start_time, end_time, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		exercise.TeacherID,
		exercise.Title,
		exercise.Content,
		exercise.DifficultyLevel,
		exercise.StartTime,
		exercise.EndTime,
		exercise.CreatedAt,
		exercise.IsActive,
	).Scan(&exercise.ID)
	if err != nil {
		return fmt.Errorf("failed to create exercise: %w", err)
	}
	return nil
}

// SubmitRecord inserts the record and rolls the day's attendance stats
// forward inside one transaction, so the record and its rollup never
// diverge. Concurrent submissions serialize on the upsert's conflict target.
func (s *PostgresStore) SubmitRecord(record *models.ExerciseRecord) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowx(`
		INSERT INTO exercise_records (
			student_id, exercise_id, audio_path, session_id,
			score, accuracy, fluency, integrity,
			ai_feedback, feedback_type, attempt_count,
			status, submit_time, submit_day
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
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
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to create exercise record: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO attendance_stats (student_id, date, exercises_completed, total_score, best_score, updated_at)
		VALUES ($1, $2, 1, $3, $3, $4)
		ON CONFLICT (student_id, date) DO UPDATE SET
			exercises_completed = attendance_stats.exercises_completed + 1,
			total_score = attendance_stats.total_score + EXCLUDED.total_score,
			best_score = GREATEST(attendance_stats.best_score, EXCLUDED.best_score),
			updated_at = EXCLUDED.updated_at
	`,
		record.StudentID,
		record.SubmitDay,
		record.Score,
		record.SubmitTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance stats: %w", err)
	}

	return tx.Commit()
}
