package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/uttal/internal/models"
)

type Store interface {
	Close() error
	ApplyMigrations(dir string) error

	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	GetUserByID(id int64) (*models.User, error)
	ListUserOverviews() ([]models.UserOverview, error)
	UpdateUser(user *models.User) error
	UpdateUserPassword(id int64, passwordHash string) error
	UsernameTaken(username string, excludeID int64) (bool, error)
	DeleteUser(id int64) error
	TouchLastLogin(id, now int64) error

	CreateExercise(exercise *models.Exercise) error
	GetExercise(id int64) (*models.Exercise, error)
	UpdateExercise(exercise *models.Exercise) error
	DeleteExercise(id int64) error
	ListTeacherExercises(teacherID int64) ([]models.Exercise, error)
	ListAvailableExercises(studentID, now int64) ([]models.AvailableExercise, error)

	SubmitRecord(record *models.ExerciseRecord) error
	GetRecord(id int64) (*models.ExerciseRecord, error)
	ListStudentRecords(studentID int64, limit int) ([]models.RecordWithExercise, error)
	ListExerciseRecords(exerciseID int64) ([]models.RecordWithStudent, error)
	ListPendingRecords() ([]models.RecordWithStudent, error)
	ListStudentFeedback(studentID int64) ([]models.RecordWithReviewer, error)
	ReviewRecord(id, reviewerID int64, status, feedback, feedbackType string, reviewedAt int64) error
	UpdateTeacherFeedback(id int64, feedback, feedbackType string) error

	GetAttendance(studentID int64, date string) (*models.AttendanceStats, error)
	StudentStats(studentID, from, to int64) (*models.StudentStats, error)
	ClassStats(teacherID, from, to int64) ([]models.ClassStatRow, error)
	RebuildDailyStats(day string, now int64) error
}

const recordColumns = `
	id, student_id, exercise_id, audio_path, session_id,
	score, accuracy, fluency, integrity,
	ai_feedback, teacher_feedback, feedback_type, attempt_count,
	status, submit_time, submit_day, reviewer_id, reviewed_at
`

const userColumns = `
	id, username, password, email, role, real_name, student_id, class_name, created_at, last_login
`

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(fmt.Sprintf("%s/%s", dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

func (s *BaseStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	query := s.Converter(`SELECT ` + userColumns + ` FROM users WHERE username = ?`)

	err := s.DB.Get(&user, query, username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

func (s *BaseStore) GetUserByID(id int64) (*models.User, error) {
	var user models.User
	query := s.Converter(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)

	err := s.DB.Get(&user, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (s *BaseStore) ListUserOverviews() ([]models.UserOverview, error) {
	var users []models.UserOverview
	err := s.DB.Select(&users, `
		SELECT
			u.id,
			u.username,
			u.email,
			u.role,
			u.real_name,
			u.student_id,
			u.class_name,
			u.created_at,
			u.last_login,
			COUNT(er.id) AS exercise_count,
			MAX(er.submit_time) AS last_submit_time
		FROM users u
		LEFT JOIN exercise_records er ON er.student_id = u.id
		GROUP BY u.id, u.username, u.email, u.role, u.real_name, u.student_id, u.class_name, u.created_at, u.last_login
		ORDER BY u.created_at DESC, u.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *BaseStore) UpdateUser(user *models.User) error {
	query := s.Converter(`
		UPDATE users
		SET username = ?, email = ?, role = ?, real_name = ?, student_id = ?, class_name = ?
		WHERE id = ?
	`)
	_, err := s.DB.Exec(query,
		user.Username, user.Email, user.Role, user.RealName, user.StudentID, user.ClassName, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (s *BaseStore) UpdateUserPassword(id int64, passwordHash string) error {
	query := s.Converter(`UPDATE users SET password = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, passwordHash, id); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (s *BaseStore) UsernameTaken(username string, excludeID int64) (bool, error) {
	var count int
	query := s.Converter(`SELECT COUNT(*) FROM users WHERE username = ? AND id != ?`)
	if err := s.DB.Get(&count, query, username, excludeID); err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

// DeleteUser removes a user and, first, every row referencing them: their
// own submissions and rollups, reviews they authored, and for teachers
// their exercises together with the submissions against those.
func (s *BaseStore) DeleteUser(id int64) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.Converter(`DELETE FROM attendance_stats WHERE student_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete attendance stats: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`DELETE FROM exercise_records WHERE student_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete exercise records: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`UPDATE exercise_records SET reviewer_id = NULL WHERE reviewer_id = ?`), id); err != nil {
		return fmt.Errorf("failed to detach reviews: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`DELETE FROM exercise_records WHERE exercise_id IN (SELECT id FROM exercises WHERE teacher_id = ?)`), id); err != nil {
		return fmt.Errorf("failed to delete records of owned exercises: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`DELETE FROM exercises WHERE teacher_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete owned exercises: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`DELETE FROM users WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return tx.Commit()
}

func (s *BaseStore) TouchLastLogin(id, now int64) error {
	query := s.Converter(`UPDATE users SET last_login = ? WHERE id = ?`)
	if _, err := s.DB.Exec(query, now, id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (s *BaseStore) GetExercise(id int64) (*models.Exercise, error) {
	var exercise models.Exercise
	query := s.Converter(`
		SELECT id, teacher_id, title, content, difficulty_level, start_time, end_time, created_at, is_active
		FROM exercises
		WHERE id = ?
	`)

	err := s.DB.Get(&exercise, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}
	return &exercise, nil
}

func (s *BaseStore) UpdateExercise(exercise *models.Exercise) error {
	query := s.Converter(`
		UPDATE exercises
		SET title = ?, content = ?, difficulty_level = ?, start_time = ?, end_time = ?, is_active = ?
		WHERE id = ?
	`)
	_, err := s.DB.Exec(query,
		exercise.Title,
		exercise.Content,
		exercise.DifficultyLevel,
		exercise.StartTime,
		exercise.EndTime,
		exercise.IsActive,
		exercise.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update exercise: %w", err)
	}
	return nil
}

// DeleteExercise cascades to the records referencing the exercise so the
// foreign keys stay intact.
func (s *BaseStore) DeleteExercise(id int64) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.Converter(`DELETE FROM exercise_records WHERE exercise_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete exercise records: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`DELETE FROM exercises WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete exercise: %w", err)
	}

	return tx.Commit()
}

func (s *BaseStore) ListTeacherExercises(teacherID int64) ([]models.Exercise, error) {
	var exercises []models.Exercise
	query := s.Converter(`
		SELECT id, teacher_id, title, content, difficulty_level, start_time, end_time, created_at, is_active
		FROM exercises
		WHERE teacher_id = ?
		ORDER BY created_at DESC, id DESC
	`)

	if err := s.DB.Select(&exercises, query, teacherID); err != nil {
		return nil, fmt.Errorf("failed to list teacher exercises: %w", err)
	}
	return exercises, nil
}

// ListAvailableExercises returns active exercises whose window is open at
// `now`, each tagged with the per-student status. The submitted check joins
// a deduplicated subquery so repeat attempts do not multiply rows.
func (s *BaseStore) ListAvailableExercises(studentID, now int64) ([]models.AvailableExercise, error) {
	var exercises []models.AvailableExercise
	query := s.Converter(`
		SELECT
			e.id,
			e.teacher_id,
			e.title,
			e.content,
			e.difficulty_level,
			e.start_time,
			e.end_time,
			e.created_at,
			e.is_active,
			u.real_name AS teacher_name,
			CASE
				WHEN er.exercise_id IS NOT NULL THEN 'submitted'
				WHEN e.start_time IS NOT NULL AND ? < e.start_time THEN 'pending'
				WHEN e.end_time IS NOT NULL AND ? > e.end_time THEN 'expired'
				ELSE 'available'
			END AS status
		FROM exercises e
		JOIN users u ON u.id = e.teacher_id
		LEFT JOIN (
			SELECT DISTINCT exercise_id
			FROM exercise_records
			WHERE student_id = ?
		) er ON er.exercise_id = e.id
		WHERE e.is_active = TRUE
		  AND (e.start_time IS NULL OR ? >= e.start_time)
		  AND (e.end_time IS NULL OR ? <= e.end_time)
		ORDER BY e.created_at DESC, e.id DESC
	`)

	if err := s.DB.Select(&exercises, query, now, now, studentID, now, now); err != nil {
		return nil, fmt.Errorf("failed to list available exercises: %w", err)
	}
	return exercises, nil
}

func (s *BaseStore) GetRecord(id int64) (*models.ExerciseRecord, error) {
	var record models.ExerciseRecord
	query := s.Converter(`SELECT ` + recordColumns + ` FROM exercise_records WHERE id = ?`)

	err := s.DB.Get(&record, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &record, nil
}

func (s *BaseStore) ListStudentRecords(studentID int64, limit int) ([]models.RecordWithExercise, error) {
	var records []models.RecordWithExercise
	query := s.Converter(`
		SELECT
			er.id, er.student_id, er.exercise_id, er.audio_path, er.session_id,
			er.score, er.accuracy, er.fluency, er.integrity,
			er.ai_feedback, er.teacher_feedback, er.feedback_type, er.attempt_count,
			er.status, er.submit_time, er.submit_day, er.reviewer_id, er.reviewed_at,
			e.title AS title,
			e.content AS exercise_content
		FROM exercise_records er
		JOIN exercises e ON e.id = er.exercise_id
		WHERE er.student_id = ?
		ORDER BY er.submit_time DESC, er.id DESC
		LIMIT ?
	`)

	if err := s.DB.Select(&records, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("failed to list student records: %w", err)
	}
	return records, nil
}

func (s *BaseStore) ListExerciseRecords(exerciseID int64) ([]models.RecordWithStudent, error) {
	var records []models.RecordWithStudent
	query := s.Converter(`
		SELECT
			er.id, er.student_id, er.exercise_id, er.audio_path, er.session_id,
			er.score, er.accuracy, er.fluency, er.integrity,
			er.ai_feedback, er.teacher_feedback, er.feedback_type, er.attempt_count,
			er.status, er.submit_time, er.submit_day, er.reviewer_id, er.reviewed_at,
			u.username AS username,
			u.real_name AS real_name,
			u.class_name AS class_name,
			e.title AS exercise_title
		FROM exercise_records er
		JOIN users u ON u.id = er.student_id
		JOIN exercises e ON e.id = er.exercise_id
		WHERE er.exercise_id = ?
		ORDER BY er.submit_time DESC, er.id DESC
	`)

	if err := s.DB.Select(&records, query, exerciseID); err != nil {
		return nil, fmt.Errorf("failed to list exercise records: %w", err)
	}
	return records, nil
}

// ListPendingRecords is the review queue: submitted records that no teacher
// has written feedback for yet.
func (s *BaseStore) ListPendingRecords() ([]models.RecordWithStudent, error) {
	var records []models.RecordWithStudent
	err := s.DB.Select(&records, `
		SELECT
			er.id, er.student_id, er.exercise_id, er.audio_path, er.session_id,
			er.score, er.accuracy, er.fluency, er.integrity,
			er.ai_feedback, er.teacher_feedback, er.feedback_type, er.attempt_count,
			er.status, er.submit_time, er.submit_day, er.reviewer_id, er.reviewed_at,
			u.username AS username,
			u.real_name AS real_name,
			u.class_name AS class_name,
			e.title AS exercise_title
		FROM exercise_records er
		JOIN users u ON u.id = er.student_id
		JOIN exercises e ON e.id = er.exercise_id
		WHERE er.status = 'submitted'
		  AND (er.teacher_feedback IS NULL OR er.teacher_feedback = '')
		ORDER BY er.submit_time DESC, er.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	return records, nil
}

func (s *BaseStore) ListStudentFeedback(studentID int64) ([]models.RecordWithReviewer, error) {
	var records []models.RecordWithReviewer
	query := s.Converter(`
		SELECT
			er.id, er.student_id, er.exercise_id, er.audio_path, er.session_id,
			er.score, er.accuracy, er.fluency, er.integrity,
			er.ai_feedback, er.teacher_feedback, er.feedback_type, er.attempt_count,
			er.status, er.submit_time, er.submit_day, er.reviewer_id, er.reviewed_at,
			e.title AS exercise_title,
			u.real_name AS teacher_name
		FROM exercise_records er
		JOIN exercises e ON e.id = er.exercise_id
		LEFT JOIN users u ON u.id = er.reviewer_id
		WHERE er.student_id = ?
		  AND (er.status != 'submitted' OR (er.teacher_feedback IS NOT NULL AND er.teacher_feedback != ''))
		ORDER BY er.submit_time DESC, er.id DESC
	`)

	if err := s.DB.Select(&records, query, studentID); err != nil {
		return nil, fmt.Errorf("failed to list student feedback: %w", err)
	}
	return records, nil
}

// ReviewRecord overwrites the review fields in full, so re-reviewing a
// record is an update of the decision rather than a second decision.
func (s *BaseStore) ReviewRecord(id, reviewerID int64, status, feedback, feedbackType string, reviewedAt int64) error {
	query := s.Converter(`
		UPDATE exercise_records
		SET status = ?, reviewer_id = ?, teacher_feedback = ?, feedback_type = ?, reviewed_at = ?
		WHERE id = ?
	`)
	_, err := s.DB.Exec(query, status, reviewerID, feedback, feedbackType, reviewedAt, id)
	if err != nil {
		return fmt.Errorf("failed to review record: %w", err)
	}
	return nil
}

func (s *BaseStore) UpdateTeacherFeedback(id int64, feedback, feedbackType string) error {
	query := s.Converter(`
		UPDATE exercise_records
		SET teacher_feedback = ?, feedback_type = ?
		WHERE id = ?
	`)
	if _, err := s.DB.Exec(query, feedback, feedbackType, id); err != nil {
		return fmt.Errorf("failed to update teacher feedback: %w", err)
	}
	return nil
}

func (s *BaseStore) GetAttendance(studentID int64, date string) (*models.AttendanceStats, error) {
	var stats models.AttendanceStats
	query := s.Converter(`
		SELECT student_id, date, exercises_completed, total_score, best_score, updated_at
		FROM attendance_stats
		WHERE student_id = ? AND date = ?
	`)

	err := s.DB.Get(&stats, query, studentID, date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance stats: %w", err)
	}
	return &stats, nil
}

func (s *BaseStore) StudentStats(studentID, from, to int64) (*models.StudentStats, error) {
	var stats models.StudentStats
	query := s.Converter(`
		SELECT
			COUNT(*) AS total_exercises,
			COALESCE(AVG(score), 0) AS avg_score,
			COALESCE(MAX(score), 0) AS max_score,
			COUNT(DISTINCT submit_day) AS active_days
		FROM exercise_records
		WHERE student_id = ?
		  AND submit_time BETWEEN ? AND ?
	`)

	if err := s.DB.Get(&stats, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("failed to get student stats: %w", err)
	}
	return &stats, nil
}

// ClassStats aggregates per student over records against the teacher's own
// exercises. Students with no qualifying records in range are omitted.
func (s *BaseStore) ClassStats(teacherID, from, to int64) ([]models.ClassStatRow, error) {
	var rows []models.ClassStatRow
	query := s.Converter(`
		SELECT
			u.id AS student_id,
			u.username,
			u.real_name,
			u.class_name,
			COUNT(er.id) AS total_exercises,
			COALESCE(AVG(er.score), 0) AS avg_score,
			COALESCE(MAX(er.score), 0) AS max_score,
			COUNT(DISTINCT er.submit_day) AS active_days
		FROM exercise_records er
		JOIN users u ON u.id = er.student_id
		JOIN exercises e ON e.id = er.exercise_id
		WHERE e.teacher_id = ?
		  AND er.submit_time BETWEEN ? AND ?
		GROUP BY u.id, u.username, u.real_name, u.class_name
		ORDER BY avg_score DESC, u.username ASC
	`)

	if err := s.DB.Select(&rows, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("failed to get class stats: %w", err)
	}
	return rows, nil
}

// RebuildDailyStats recomputes attendance_stats for one calendar day from
// the records themselves. The rollup is a cache; this is its refresh path.
func (s *BaseStore) RebuildDailyStats(day string, now int64) error {
	type dailyRow struct {
		StudentID int64 `db:"student_id"`
		Completed int   `db:"completed"`
		Total     int   `db:"total"`
		Best      int   `db:"best"`
	}

	var rows []dailyRow
	query := s.Converter(`
		SELECT
			student_id,
			COUNT(*) AS completed,
			COALESCE(SUM(score), 0) AS total,
			COALESCE(MAX(score), 0) AS best
		FROM exercise_records
		WHERE submit_day = ?
		GROUP BY student_id
	`)
	if err := s.DB.Select(&rows, query, day); err != nil {
		return fmt.Errorf("failed to aggregate daily records: %w", err)
	}

	upsert := s.Converter(`
		INSERT INTO attendance_stats (student_id, date, exercises_completed, total_score, best_score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE SET
			exercises_completed = EXCLUDED.exercises_completed,
			total_score = EXCLUDED.total_score,
			best_score = EXCLUDED.best_score,
			updated_at = EXCLUDED.updated_at
	`)
	for _, row := range rows {
		if _, err := s.DB.Exec(upsert, row.StudentID, day, row.Completed, row.Total, row.Best, now); err != nil {
			return fmt.Errorf("failed to rebuild stats for student %d: %w", row.StudentID, err)
		}
	}

	return nil
}
