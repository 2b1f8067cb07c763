package postgres

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shrimpsizemoose/uttal/internal/models"
)

// setupTestDB spins up a throwaway Postgres container and applies migrations
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	postgres, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	dsn, err := postgres.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(dsn, "../../../migrations")
	require.NoError(t, err, "Failed to create store")

	cleanup := func() {
		s.Close()
		postgres.Terminate(ctx)
	}

	return s, cleanup
}

type testData struct {
	store   *PostgresStore
	now     time.Time
	teacher *models.User
	student *models.User
	open    *models.Exercise
}

func strPtr(s string) *string { return &s }

func setupTestData(t *testing.T) (*testData, func()) {
	s, cleanup := setupTestDB(t)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	teacher := &models.User{
		Username:  "ms.wang",
		Password:  "hash",
		Role:      models.RoleTeacher,
		RealName:  "Wang Fang",
		CreatedAt: now.Unix(),
	}
	require.NoError(t, s.CreateUser(teacher))

	student := &models.User{
		Username:  "alice",
		Password:  "hash",
		Role:      models.RoleStudent,
		RealName:  "Alice Chen",
		ClassName: strPtr("3A"),
		CreatedAt: now.Unix(),
	}
	require.NoError(t, s.CreateUser(student))

	open := &models.Exercise{
		TeacherID:       teacher.ID,
		Title:           "Daily greeting",
		Content:         "Good morning, how are you today?",
		DifficultyLevel: 1,
		CreatedAt:       now.Unix(),
		IsActive:        true,
	}
	require.NoError(t, s.CreateExercise(open))

	return &testData{
		store:   s,
		now:     now,
		teacher: teacher,
		student: student,
		open:    open,
	}, cleanup
}

func submitAt(t *testing.T, td *testData, score int, at time.Time) *models.ExerciseRecord {
	t.Helper()

	record := &models.ExerciseRecord{
		StudentID:    td.student.ID,
		ExerciseID:   td.open.ID,
		SessionID:    time.Now().Format("150405.000000000"),
		Score:        score,
		Accuracy:     float64(score),
		Fluency:      85,
		Integrity:    90,
		FeedbackType: models.FeedbackTypeAI,
		AttemptCount: 1,
		Status:       models.RecordStatusSubmitted,
		SubmitTime:   at.Unix(),
		SubmitDay:    at.UTC().Format("2006-01-02"),
	}
	require.NoError(t, td.store.SubmitRecord(record))
	require.NotZero(t, record.ID)
	return record
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping Postgres integration tests. Use -short=false to run them.")
		os.Exit(0)
	}
	log.Println("Starting Postgres store tests...")
	code := m.Run()
	log.Println("Finished Postgres store tests")
	os.Exit(code)
}

func TestReturningIDs(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	assert.NotZero(t, td.teacher.ID)
	assert.NotZero(t, td.student.ID)
	assert.NotZero(t, td.open.ID)

	got, err := td.store.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, td.student.ID, got.ID)
}

func TestSubmitRecordRollsAttendance(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	submitAt(t, td, 70, td.now)
	submitAt(t, td, 90, td.now.Add(time.Hour))
	submitAt(t, td, 60, td.now.Add(2*time.Hour))

	stats, err := td.store.GetAttendance(td.student.ID, "2026-08-15")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.ExercisesCompleted)
	assert.Equal(t, 220, stats.TotalScore)
	assert.Equal(t, 90, stats.BestScore, "GREATEST keeps the best score")
}

func TestAvailabilityTags(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	exercises, err := td.store.ListAvailableExercises(td.student.ID, td.now.Unix())
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.Equal(t, models.ExerciseStatusAvailable, exercises[0].Status)

	submitAt(t, td, 85, td.now)

	exercises, err = td.store.ListAvailableExercises(td.student.ID, td.now.Unix())
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.Equal(t, models.ExerciseStatusSubmitted, exercises[0].Status)
}

func TestClassStats(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	submitAt(t, td, 80, td.now)
	submitAt(t, td, 90, td.now.Add(time.Hour))

	rows, err := td.store.ClassStats(td.teacher.ID, td.now.Add(-time.Hour).Unix(), td.now.Add(24*time.Hour).Unix())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Username)
	assert.Equal(t, int64(2), rows[0].TotalExercises)
	assert.InDelta(t, 85.0, rows[0].AvgScore, 0.01)
}
