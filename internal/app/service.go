package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/models"
	"github.com/shrimpsizemoose/uttal/internal/scoring"
	"github.com/shrimpsizemoose/uttal/internal/store"
)

const dayFormat = "2006-01-02"

type Service struct {
	Config    *Config
	Store     store.Store
	Auth      *Auth
	Audio     *AudioStore
	Evaluator scoring.Evaluator

	fallback scoring.Evaluator
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	auth, err := NewAuth(config)
	if err != nil {
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	audio, err := NewAudioStore(config.Uploads.Dir, config.Uploads.MaxSizeMB)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio store: %w", err)
	}

	var evaluator scoring.Evaluator
	if config.Scoring.Provider == "tencent" {
		evaluator = scoring.NewSOEEvaluator(config.Scoring.Tencent)
	} else {
		evaluator = &scoring.MockEvaluator{}
	}

	return &Service{
		Config:    config,
		Store:     store,
		Auth:      auth,
		Audio:     audio,
		Evaluator: evaluator,
		fallback:  &scoring.MockEvaluator{},
	}, nil
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Auth.Close(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}

// Register creates a user with a bcrypt-hashed password. Usernames are
// unique; a taken name is a conflict, not a validation error.
func (s *Service) Register(user *models.User, password string) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	taken, err := s.Store.UsernameTaken(user.Username, 0)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: username %s", ErrConflict, user.Username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.Password = string(hash)
	user.CreatedAt = time.Now().Unix()

	return s.Store.CreateUser(user)
}

func (s *Service) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.Store.GetUserByUsername(username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch user: %w", err)
	}
	if user == nil {
		return nil, "", fmt.Errorf("%w: unknown user or wrong password", ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("%w: unknown user or wrong password", ErrUnauthorized)
	}

	now := time.Now().Unix()
	if err := s.Store.TouchLastLogin(user.ID, now); err != nil {
		logger.Error.Printf("Failed to touch last_login for %s: %v", username, err)
	}
	user.LastLogin = &now

	token, err := s.Auth.IssueToken(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	return user, token, nil
}

func (s *Service) GetUser(id int64) (*models.User, error) {
	user, err := s.Store.GetUserByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return user, nil
}

func (s *Service) ListUsers() ([]models.UserOverview, error) {
	return s.Store.ListUserOverviews()
}

// UpdateUser applies teacher edits to a user row. Password is only
// rehashed when a new one is supplied.
func (s *Service) UpdateUser(user *models.User, newPassword string) error {
	existing, err := s.GetUser(user.ID)
	if err != nil {
		return err
	}

	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if user.Username != existing.Username {
		taken, err := s.Store.UsernameTaken(user.Username, user.ID)
		if err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			return fmt.Errorf("%w: username %s", ErrConflict, user.Username)
		}
	}

	var hash string
	if newPassword != "" {
		if len(newPassword) < 6 {
			return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		hash = string(hashed)
	}

	if err := s.Store.UpdateUser(user); err != nil {
		return err
	}

	if hash != "" {
		if err := s.Store.UpdateUserPassword(user.ID, hash); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteUser(id); err != nil {
		return err
	}

	if err := s.Auth.RevokeToken(ctx, user.Username); err != nil {
		logger.Error.Printf("Failed to revoke token for deleted user %s: %v", user.Username, err)
	}
	return nil
}

type ImportRow struct {
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	RealName  string  `json:"real_name"`
	StudentID *string `json:"student_id,omitempty"`
	ClassName *string `json:"class_name,omitempty"`
}

type ImportResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ImportStudents creates student accounts in bulk. Rows that fail keep
// the batch going; the result reports them one by one. A row without a
// password defaults to the username.
func (s *Service) ImportStudents(rows []ImportRow) (*ImportResult, error) {
	result := &ImportResult{}

	for _, row := range rows {
		password := row.Password
		if password == "" {
			password = row.Username
		}

		user := &models.User{
			Username:  row.Username,
			Role:      models.RoleStudent,
			RealName:  row.RealName,
			StudentID: row.StudentID,
			ClassName: row.ClassName,
		}

		if err := s.Register(user, password); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", row.Username, err))
			continue
		}
		result.Created++
	}

	return result, nil
}

func (s *Service) CreateExercise(teacherID int64, exercise *models.Exercise) error {
	exercise.TeacherID = teacherID
	exercise.CreatedAt = time.Now().Unix()
	if err := exercise.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.Store.CreateExercise(exercise)
}

func (s *Service) GetExercise(id int64) (*models.Exercise, error) {
	exercise, err := s.Store.GetExercise(id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exercise: %w", err)
	}
	if exercise == nil {
		return nil, fmt.Errorf("%w: exercise %d", ErrNotFound, id)
	}
	return exercise, nil
}

// ownExercise fetches an exercise and checks the caller created it.
func (s *Service) ownExercise(teacherID, exerciseID int64) (*models.Exercise, error) {
	exercise, err := s.GetExercise(exerciseID)
	if err != nil {
		return nil, err
	}
	if exercise.TeacherID != teacherID {
		return nil, fmt.Errorf("%w: exercise %d belongs to another teacher", ErrForbidden, exerciseID)
	}
	return exercise, nil
}

func (s *Service) UpdateExercise(teacherID int64, exercise *models.Exercise) error {
	existing, err := s.ownExercise(teacherID, exercise.ID)
	if err != nil {
		return err
	}

	exercise.TeacherID = existing.TeacherID
	exercise.CreatedAt = existing.CreatedAt
	if err := exercise.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.Store.UpdateExercise(exercise)
}

func (s *Service) DeleteExercise(teacherID, exerciseID int64) error {
	if _, err := s.ownExercise(teacherID, exerciseID); err != nil {
		return err
	}
	return s.Store.DeleteExercise(exerciseID)
}

func (s *Service) ListTeacherExercises(teacherID int64) ([]models.Exercise, error) {
	return s.Store.ListTeacherExercises(teacherID)
}

func (s *Service) ListAvailableExercises(studentID int64) ([]models.AvailableExercise, error) {
	return s.Store.ListAvailableExercises(studentID, time.Now().Unix())
}

// SubmitResult is what the student gets back for one submission: the
// stored record plus whether scoring fell back to the local evaluator.
type SubmitResult struct {
	Record   *models.ExerciseRecord `json:"record"`
	Degraded bool                   `json:"degraded,omitempty"`
}

// Submit scores the audio server-side and writes the record together
// with the day's attendance rollup in one transaction. Only students
// submit; the window is re-checked here because listing filters are no
// barrier to a stale or hand-crafted request.
func (s *Service) Submit(ctx context.Context, studentID, exerciseID int64, audio []byte, filename string) (*SubmitResult, error) {
	student, err := s.GetUser(studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != models.RoleStudent {
		return nil, fmt.Errorf("%w: only students can submit recordings", ErrForbidden)
	}

	exercise, err := s.GetExercise(exerciseID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !exercise.IsActive {
		return nil, fmt.Errorf("%w: exercise is not active", ErrValidation)
	}
	if exercise.StartTime != nil && now.Unix() < *exercise.StartTime {
		return nil, fmt.Errorf("%w: exercise has not started yet", ErrValidation)
	}
	if exercise.EndTime != nil && now.Unix() > *exercise.EndTime {
		return nil, fmt.Errorf("%w: exercise has expired", ErrValidation)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio upload", ErrValidation)
	}

	sessionID := uuid.NewString()
	evaluation, degraded := s.evaluate(ctx, audio, exercise.Content, sessionID)

	audioPath, err := s.Audio.Save(audio, filename)
	if err != nil {
		return nil, err
	}

	record := &models.ExerciseRecord{
		StudentID:    studentID,
		ExerciseID:   exerciseID,
		AudioPath:    &audioPath,
		SessionID:    sessionID,
		Score:        evaluation.Score,
		Accuracy:     evaluation.Accuracy,
		Fluency:      evaluation.Fluency,
		Integrity:    evaluation.Integrity,
		AIFeedback:   &evaluation.Feedback,
		FeedbackType: models.FeedbackTypeAI,
		AttemptCount: 1,
		Status:       models.RecordStatusSubmitted,
		SubmitTime:   now.Unix(),
		SubmitDay:    now.UTC().Format(dayFormat),
	}

	if err := s.Store.SubmitRecord(record); err != nil {
		return nil, err
	}

	return &SubmitResult{Record: record, Degraded: degraded}, nil
}

// evaluate runs the configured evaluator and degrades to the local one
// on failure, so a vendor outage never blocks submissions.
func (s *Service) evaluate(ctx context.Context, audio []byte, text, sessionID string) (*scoring.Evaluation, bool) {
	evaluation, err := s.Evaluator.Evaluate(ctx, audio, text, sessionID)
	if err == nil {
		return evaluation, false
	}

	logger.Error.Printf("Evaluation failed for session %s, falling back: %v", sessionID, err)
	evaluation, fallbackErr := s.fallback.Evaluate(ctx, audio, text, sessionID)
	if fallbackErr != nil {
		// the mock never errors, keep the compiler honest
		evaluation = &scoring.Evaluation{}
	}
	return evaluation, true
}

// EvaluateOnly scores audio against a text without persisting anything.
func (s *Service) EvaluateOnly(ctx context.Context, audio []byte, text string) (*scoring.Evaluation, bool, error) {
	if text == "" {
		return nil, false, fmt.Errorf("%w: text is required", ErrValidation)
	}
	if len(audio) == 0 {
		return nil, false, fmt.Errorf("%w: empty audio upload", ErrValidation)
	}

	evaluation, degraded := s.evaluate(ctx, audio, text, uuid.NewString())
	return evaluation, degraded, nil
}

func (s *Service) GetRecord(id int64) (*models.ExerciseRecord, error) {
	record, err := s.Store.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: record %d", ErrNotFound, id)
	}
	return record, nil
}

func (s *Service) ListStudentRecords(studentID int64, limit int) ([]models.RecordWithExercise, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.Store.ListStudentRecords(studentID, limit)
}

func (s *Service) ListExerciseRecords(teacherID, exerciseID int64) ([]models.RecordWithStudent, error) {
	if _, err := s.ownExercise(teacherID, exerciseID); err != nil {
		return nil, err
	}
	return s.Store.ListExerciseRecords(exerciseID)
}

func (s *Service) ListPendingRecords() ([]models.RecordWithStudent, error) {
	return s.Store.ListPendingRecords()
}

func (s *Service) ListStudentFeedback(studentID int64) ([]models.RecordWithReviewer, error) {
	return s.Store.ListStudentFeedback(studentID)
}

// Review settles a submission. Re-reviewing overwrites the previous
// outcome wholesale, so repeating a review is a no-op.
func (s *Service) Review(reviewerID, recordID int64, status, feedback, feedbackType string) error {
	if status != models.RecordStatusApproved && status != models.RecordStatusRejected {
		return fmt.Errorf("%w: status must be approved or rejected", ErrValidation)
	}
	if feedbackType == "" {
		feedbackType = models.FeedbackTypeTeacher
	}
	if err := validFeedbackType(feedbackType); err != nil {
		return err
	}

	if _, err := s.GetRecord(recordID); err != nil {
		return err
	}

	return s.Store.ReviewRecord(recordID, reviewerID, status, feedback, feedbackType, time.Now().Unix())
}

// AttachFeedback adds teacher commentary without changing the record's
// review status.
func (s *Service) AttachFeedback(recordID int64, feedback, feedbackType string) error {
	if feedback == "" {
		return fmt.Errorf("%w: feedback is required", ErrValidation)
	}
	if feedbackType == "" {
		feedbackType = models.FeedbackTypeTeacher
	}
	if err := validFeedbackType(feedbackType); err != nil {
		return err
	}

	if _, err := s.GetRecord(recordID); err != nil {
		return err
	}

	return s.Store.UpdateTeacherFeedback(recordID, feedback, feedbackType)
}

func validFeedbackType(feedbackType string) error {
	switch feedbackType {
	case models.FeedbackTypeAI, models.FeedbackTypeTeacher, models.FeedbackTypeBoth:
		return nil
	default:
		return fmt.Errorf("%w: unknown feedback type %q", ErrValidation, feedbackType)
	}
}

func (s *Service) GetAttendance(studentID int64, date string) (*models.AttendanceStats, error) {
	if date == "" {
		date = time.Now().UTC().Format(dayFormat)
	}
	if _, err := time.Parse(dayFormat, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}

	stats, err := s.Store.GetAttendance(studentID, date)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &models.AttendanceStats{StudentID: studentID, Date: date}
	}
	return stats, nil
}

func (s *Service) StudentStats(studentID int64, fromStr, toStr string) (*models.StudentStats, error) {
	from, to, err := s.parseRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}
	return s.Store.StudentStats(studentID, from, to)
}

func (s *Service) ClassStats(teacherID int64, fromStr, toStr string) ([]models.ClassStatRow, error) {
	from, to, err := s.parseRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}
	return s.Store.ClassStats(teacherID, from, to)
}

// parseRange turns optional YYYY-MM-DD bounds into an inclusive unix
// interval. Missing bounds default to the configured trailing window
// ending today; the upper bound covers its whole day.
func (s *Service) parseRange(fromStr, toStr string) (int64, int64, error) {
	now := time.Now().UTC()

	toDay := now
	if toStr != "" {
		parsed, err := time.Parse(dayFormat, toStr)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: to date must be YYYY-MM-DD", ErrValidation)
		}
		toDay = parsed
	}

	fromDay := toDay.AddDate(0, 0, -s.Config.Stats.DefaultRangeDays)
	if fromStr != "" {
		parsed, err := time.Parse(dayFormat, fromStr)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: from date must be YYYY-MM-DD", ErrValidation)
		}
		fromDay = parsed
	}

	from := time.Date(fromDay.Year(), fromDay.Month(), fromDay.Day(), 0, 0, 0, 0, time.UTC).Unix()
	to := time.Date(toDay.Year(), toDay.Month(), toDay.Day(), 23, 59, 59, 0, time.UTC).Unix()
	if from > to {
		return 0, 0, fmt.Errorf("%w: from date is after to date", ErrValidation)
	}

	return from, to, nil
}
