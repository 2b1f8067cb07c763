// internal/store/sqlite/store_test.go
package sqlite

import (
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/uttal/internal/models"
)

func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	s, err := NewSQLiteStore(":memory:", "../../../migrations")
	require.NoError(t, err, "Failed to create store")

	cleanup := func() {
		err := s.Close()
		require.NoError(t, err, "Failed to close database")
	}

	return s, cleanup
}

type testData struct {
	store   *SQLiteStore
	now     time.Time
	teacher *models.User
	alice   *models.User
	bob     *models.User
	open    *models.Exercise
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

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
	require.NoError(t, s.CreateUser(teacher), "Failed to create teacher")

	alice := &models.User{
		Username:  "alice",
		Password:  "hash",
		Role:      models.RoleStudent,
		RealName:  "Alice Chen",
		ClassName: strPtr("3A"),
		CreatedAt: now.Unix(),
	}
	require.NoError(t, s.CreateUser(alice), "Failed to create student")

	bob := &models.User{
		Username:  "bob",
		Password:  "hash",
		Role:      models.RoleStudent,
		RealName:  "Bob Liu",
		ClassName: strPtr("3A"),
		CreatedAt: now.Unix(),
	}
	require.NoError(t, s.CreateUser(bob), "Failed to create student")

	open := &models.Exercise{
		TeacherID:       teacher.ID,
		Title:           "Daily greeting",
		Content:         "Good morning, how are you today?",
		DifficultyLevel: 1,
		CreatedAt:       now.Unix(),
		IsActive:        true,
	}
	require.NoError(t, s.CreateExercise(open), "Failed to create exercise")

	return &testData{
		store:   s,
		now:     now,
		teacher: teacher,
		alice:   alice,
		bob:     bob,
		open:    open,
	}, cleanup
}

func submitAt(t *testing.T, td *testData, student *models.User, exercise *models.Exercise, score int, at time.Time) *models.ExerciseRecord {
	t.Helper()

	feedback := "keep practicing"
	record := &models.ExerciseRecord{
		StudentID:    student.ID,
		ExerciseID:   exercise.ID,
		AudioPath:    strPtr(fmt.Sprintf("uploads/%s-%d.wav", student.Username, at.Unix())),
		SessionID:    fmt.Sprintf("sess-%s-%d", student.Username, at.UnixNano()),
		Score:        score,
		Accuracy:     float64(score),
		Fluency:      85,
		Integrity:    90,
		AIFeedback:   &feedback,
		FeedbackType: models.FeedbackTypeAI,
		AttemptCount: 1,
		Status:       models.RecordStatusSubmitted,
		SubmitTime:   at.Unix(),
		SubmitDay:    at.UTC().Format("2006-01-02"),
	}
	require.NoError(t, td.store.SubmitRecord(record), "Failed to submit record")
	require.NotZero(t, record.ID, "Record ID should be assigned")
	return record
}

func TestMain(m *testing.M) {
	log.Println("Starting SQLite store tests...")
	code := m.Run()
	log.Println("Finished SQLite store tests")
	os.Exit(code)
}

func TestUserOperations(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	t.Run("get by username", func(t *testing.T) {
		got, err := td.store.GetUserByUsername("alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, td.alice.ID, got.ID)
		assert.Equal(t, models.RoleStudent, got.Role)
		assert.Equal(t, "Alice Chen", got.RealName)
	})

	t.Run("get non-existent user", func(t *testing.T) {
		got, err := td.store.GetUserByUsername("nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("username taken", func(t *testing.T) {
		taken, err := td.store.UsernameTaken("alice", 0)
		require.NoError(t, err)
		assert.True(t, taken)

		taken, err = td.store.UsernameTaken("alice", td.alice.ID)
		require.NoError(t, err)
		assert.False(t, taken, "own name does not count as taken")

		taken, err = td.store.UsernameTaken("carol", 0)
		require.NoError(t, err)
		assert.False(t, taken)
	})

	t.Run("update password and login timestamp", func(t *testing.T) {
		require.NoError(t, td.store.UpdateUserPassword(td.alice.ID, "newhash"))
		require.NoError(t, td.store.TouchLastLogin(td.alice.ID, td.now.Unix()))

		got, err := td.store.GetUserByID(td.alice.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "newhash", got.Password)
		require.NotNil(t, got.LastLogin)
		assert.Equal(t, td.now.Unix(), *got.LastLogin)
	})

	t.Run("user overview counts submissions", func(t *testing.T) {
		submitAt(t, td, td.alice, td.open, 80, td.now)

		overviews, err := td.store.ListUserOverviews()
		require.NoError(t, err)
		require.Len(t, overviews, 3)

		byName := make(map[string]models.UserOverview)
		for _, o := range overviews {
			byName[o.Username] = o
		}
		assert.Equal(t, int64(1), byName["alice"].ExerciseCount)
		assert.Equal(t, int64(0), byName["bob"].ExerciseCount)
		require.NotNil(t, byName["alice"].LastSubmitTime)
		assert.Equal(t, td.now.Unix(), *byName["alice"].LastSubmitTime)
	})

	t.Run("delete user cascades", func(t *testing.T) {
		record := submitAt(t, td, td.bob, td.open, 75, td.now)

		require.NoError(t, td.store.DeleteUser(td.bob.ID))

		got, err := td.store.GetUserByID(td.bob.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		gotRecord, err := td.store.GetRecord(record.ID)
		require.NoError(t, err)
		assert.Nil(t, gotRecord, "records should be deleted with the student")

		stats, err := td.store.GetAttendance(td.bob.ID, record.SubmitDay)
		require.NoError(t, err)
		assert.Nil(t, stats, "attendance should be deleted with the student")
	})
}

func TestExerciseLifecycle(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	t.Run("get existing", func(t *testing.T) {
		got, err := td.store.GetExercise(td.open.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Daily greeting", got.Title)
		assert.True(t, got.IsActive)
	})

	t.Run("get non-existent", func(t *testing.T) {
		got, err := td.store.GetExercise(9000)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update", func(t *testing.T) {
		td.open.Title = "Morning greeting"
		td.open.DifficultyLevel = 2
		require.NoError(t, td.store.UpdateExercise(td.open))

		got, err := td.store.GetExercise(td.open.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Morning greeting", got.Title)
		assert.Equal(t, 2, got.DifficultyLevel)
	})

	t.Run("list newest first", func(t *testing.T) {
		newer := &models.Exercise{
			TeacherID:       td.teacher.ID,
			Title:           "Tongue twister",
			Content:         "She sells seashells by the seashore",
			DifficultyLevel: 3,
			CreatedAt:       td.now.Add(time.Hour).Unix(),
			IsActive:        true,
		}
		require.NoError(t, td.store.CreateExercise(newer))

		exercises, err := td.store.ListTeacherExercises(td.teacher.ID)
		require.NoError(t, err)
		require.Len(t, exercises, 2)
		assert.Equal(t, "Tongue twister", exercises[0].Title)
	})

	t.Run("delete cascades to records", func(t *testing.T) {
		record := submitAt(t, td, td.alice, td.open, 88, td.now)

		require.NoError(t, td.store.DeleteExercise(td.open.ID))

		got, err := td.store.GetExercise(td.open.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		gotRecord, err := td.store.GetRecord(record.ID)
		require.NoError(t, err)
		assert.Nil(t, gotRecord)
	})
}

func TestListAvailableExercises(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	notStarted := &models.Exercise{
		TeacherID:       td.teacher.ID,
		Title:           "Next week's drill",
		Content:         "The quick brown fox",
		DifficultyLevel: 2,
		StartTime:       int64Ptr(td.now.Add(48 * time.Hour).Unix()),
		CreatedAt:       td.now.Unix(),
		IsActive:        true,
	}
	require.NoError(t, td.store.CreateExercise(notStarted))

	ended := &models.Exercise{
		TeacherID:       td.teacher.ID,
		Title:           "Last week's drill",
		Content:         "A stitch in time",
		DifficultyLevel: 2,
		EndTime:         int64Ptr(td.now.Add(-48 * time.Hour).Unix()),
		CreatedAt:       td.now.Unix(),
		IsActive:        true,
	}
	require.NoError(t, td.store.CreateExercise(ended))

	inactive := &models.Exercise{
		TeacherID:       td.teacher.ID,
		Title:           "Draft",
		Content:         "Not yet published",
		DifficultyLevel: 1,
		CreatedAt:       td.now.Unix(),
		IsActive:        false,
	}
	require.NoError(t, td.store.CreateExercise(inactive))

	t.Run("only open-window active exercises show up", func(t *testing.T) {
		exercises, err := td.store.ListAvailableExercises(td.alice.ID, td.now.Unix())
		require.NoError(t, err)
		require.Len(t, exercises, 1)
		assert.Equal(t, td.open.ID, exercises[0].ID)
		assert.Equal(t, models.ExerciseStatusAvailable, exercises[0].Status)
		assert.Equal(t, "Wang Fang", exercises[0].TeacherName)
	})

	t.Run("submitted tag after submission", func(t *testing.T) {
		submitAt(t, td, td.alice, td.open, 85, td.now)

		exercises, err := td.store.ListAvailableExercises(td.alice.ID, td.now.Unix())
		require.NoError(t, err)
		require.Len(t, exercises, 1)
		assert.Equal(t, models.ExerciseStatusSubmitted, exercises[0].Status)
	})

	t.Run("repeat attempts do not duplicate rows", func(t *testing.T) {
		submitAt(t, td, td.alice, td.open, 92, td.now.Add(time.Minute))

		exercises, err := td.store.ListAvailableExercises(td.alice.ID, td.now.Unix())
		require.NoError(t, err)
		assert.Len(t, exercises, 1)
	})

	t.Run("tags are per student", func(t *testing.T) {
		exercises, err := td.store.ListAvailableExercises(td.bob.ID, td.now.Unix())
		require.NoError(t, err)
		require.Len(t, exercises, 1)
		assert.Equal(t, models.ExerciseStatusAvailable, exercises[0].Status)
	})

	t.Run("window boundaries are inclusive", func(t *testing.T) {
		exercises, err := td.store.ListAvailableExercises(td.alice.ID, *notStarted.StartTime)
		require.NoError(t, err)
		assert.Len(t, exercises, 2, "exercise becomes visible exactly at start_time")
	})
}

func TestSubmitRecordRollsAttendance(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	t.Run("first submission seeds the day", func(t *testing.T) {
		submitAt(t, td, td.alice, td.open, 70, td.now)

		stats, err := td.store.GetAttendance(td.alice.ID, "2026-08-15")
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, 1, stats.ExercisesCompleted)
		assert.Equal(t, 70, stats.TotalScore)
		assert.Equal(t, 70, stats.BestScore)
	})

	t.Run("second submission accumulates", func(t *testing.T) {
		submitAt(t, td, td.alice, td.open, 90, td.now.Add(time.Hour))

		stats, err := td.store.GetAttendance(td.alice.ID, "2026-08-15")
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, 2, stats.ExercisesCompleted)
		assert.Equal(t, 160, stats.TotalScore)
		assert.Equal(t, 90, stats.BestScore)
	})

	t.Run("lower score keeps best", func(t *testing.T) {
		submitAt(t, td, td.alice, td.open, 60, td.now.Add(2*time.Hour))

		stats, err := td.store.GetAttendance(td.alice.ID, "2026-08-15")
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, 3, stats.ExercisesCompleted)
		assert.Equal(t, 220, stats.TotalScore)
		assert.Equal(t, 90, stats.BestScore)
	})

	t.Run("different day gets its own row", func(t *testing.T) {
		submitAt(t, td, td.alice, td.open, 95, td.now.Add(24*time.Hour))

		stats, err := td.store.GetAttendance(td.alice.ID, "2026-08-16")
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, 1, stats.ExercisesCompleted)
		assert.Equal(t, 95, stats.BestScore)
	})

	t.Run("no attendance for idle day", func(t *testing.T) {
		stats, err := td.store.GetAttendance(td.alice.ID, "2026-01-01")
		require.NoError(t, err)
		assert.Nil(t, stats)
	})
}

func TestReviewFlow(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	record := submitAt(t, td, td.alice, td.open, 82, td.now)

	t.Run("fresh submission sits in the queue", func(t *testing.T) {
		pending, err := td.store.ListPendingRecords()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, record.ID, pending[0].ID)
		assert.Equal(t, "alice", pending[0].Username)
		assert.Equal(t, "Daily greeting", pending[0].ExerciseTitle)
	})

	t.Run("review approves and clears the queue", func(t *testing.T) {
		reviewedAt := td.now.Add(time.Hour).Unix()
		err := td.store.ReviewRecord(record.ID, td.teacher.ID, models.RecordStatusApproved, "well done", models.FeedbackTypeBoth, reviewedAt)
		require.NoError(t, err)

		got, err := td.store.GetRecord(record.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.RecordStatusApproved, got.Status)
		require.NotNil(t, got.TeacherFeedback)
		assert.Equal(t, "well done", *got.TeacherFeedback)
		require.NotNil(t, got.ReviewerID)
		assert.Equal(t, td.teacher.ID, *got.ReviewerID)
		require.NotNil(t, got.ReviewedAt)
		assert.Equal(t, reviewedAt, *got.ReviewedAt)

		pending, err := td.store.ListPendingRecords()
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("repeating the review is a no-op", func(t *testing.T) {
		reviewedAt := td.now.Add(time.Hour).Unix()
		err := td.store.ReviewRecord(record.ID, td.teacher.ID, models.RecordStatusApproved, "well done", models.FeedbackTypeBoth, reviewedAt)
		require.NoError(t, err)

		got, err := td.store.GetRecord(record.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.RecordStatusApproved, got.Status)
		assert.Equal(t, "well done", *got.TeacherFeedback)
	})

	t.Run("re-review overwrites the verdict", func(t *testing.T) {
		err := td.store.ReviewRecord(record.ID, td.teacher.ID, models.RecordStatusRejected, "try again", models.FeedbackTypeTeacher, td.now.Add(2*time.Hour).Unix())
		require.NoError(t, err)

		got, err := td.store.GetRecord(record.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.RecordStatusRejected, got.Status)
		assert.Equal(t, "try again", *got.TeacherFeedback)
	})

	t.Run("feedback without verdict leaves status alone", func(t *testing.T) {
		second := submitAt(t, td, td.alice, td.open, 77, td.now.Add(3*time.Hour))

		err := td.store.UpdateTeacherFeedback(second.ID, "mind the vowels", models.FeedbackTypeTeacher)
		require.NoError(t, err)

		got, err := td.store.GetRecord(second.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.RecordStatusSubmitted, got.Status)
		assert.Equal(t, "mind the vowels", *got.TeacherFeedback)
		assert.Nil(t, got.ReviewerID)

		pending, err := td.store.ListPendingRecords()
		require.NoError(t, err)
		assert.Empty(t, pending, "commented records leave the queue")
	})

	t.Run("student sees reviewed and commented records", func(t *testing.T) {
		feedback, err := td.store.ListStudentFeedback(td.alice.ID)
		require.NoError(t, err)
		require.Len(t, feedback, 2)
		// newest first
		assert.Equal(t, "mind the vowels", *feedback[0].TeacherFeedback)
		require.NotNil(t, feedback[1].TeacherName)
		assert.Equal(t, "Wang Fang", *feedback[1].TeacherName)
	})

	t.Run("unreviewed submissions stay out of the feedback list", func(t *testing.T) {
		submitAt(t, td, td.bob, td.open, 50, td.now)

		feedback, err := td.store.ListStudentFeedback(td.bob.ID)
		require.NoError(t, err)
		assert.Empty(t, feedback)
	})
}

func TestStudentRecordListing(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		submitAt(t, td, td.alice, td.open, 70+i, td.now.Add(time.Duration(i)*time.Minute))
	}

	t.Run("newest first with exercise info", func(t *testing.T) {
		records, err := td.store.ListStudentRecords(td.alice.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 5)
		assert.Equal(t, 74, records[0].Score)
		assert.Equal(t, "Daily greeting", records[0].Title)
	})

	t.Run("limit is honored", func(t *testing.T) {
		records, err := td.store.ListStudentRecords(td.alice.ID, 2)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("per-exercise listing includes student info", func(t *testing.T) {
		records, err := td.store.ListExerciseRecords(td.open.ID)
		require.NoError(t, err)
		require.Len(t, records, 5)
		assert.Equal(t, "alice", records[0].Username)
		require.NotNil(t, records[0].ClassName)
		assert.Equal(t, "3A", *records[0].ClassName)
	})
}

func TestStudentStats(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	submitAt(t, td, td.alice, td.open, 80, td.now)
	submitAt(t, td, td.alice, td.open, 90, td.now.Add(time.Hour))
	submitAt(t, td, td.alice, td.open, 70, td.now.Add(24*time.Hour))

	t.Run("range covering everything", func(t *testing.T) {
		stats, err := td.store.StudentStats(td.alice.ID, td.now.Add(-time.Hour).Unix(), td.now.Add(48*time.Hour).Unix())
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, int64(3), stats.TotalExercises)
		assert.Equal(t, 90, stats.MaxScore)
		assert.Equal(t, int64(2), stats.ActiveDays)
		assert.InDelta(t, 80.0, stats.AvgScore, 0.01)
	})

	t.Run("range covering one day", func(t *testing.T) {
		stats, err := td.store.StudentStats(td.alice.ID, td.now.Add(-time.Hour).Unix(), td.now.Add(2*time.Hour).Unix())
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, int64(2), stats.TotalExercises)
		assert.Equal(t, int64(1), stats.ActiveDays)
		assert.InDelta(t, 85.0, stats.AvgScore, 0.01)
	})

	t.Run("empty range zeroes out", func(t *testing.T) {
		stats, err := td.store.StudentStats(td.alice.ID, td.now.Add(-48*time.Hour).Unix(), td.now.Add(-24*time.Hour).Unix())
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, int64(0), stats.TotalExercises)
		assert.Equal(t, float64(0), stats.AvgScore)
		assert.Equal(t, 0, stats.MaxScore)
		assert.Equal(t, int64(0), stats.ActiveDays)
	})
}

func TestClassStats(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	submitAt(t, td, td.alice, td.open, 90, td.now)
	submitAt(t, td, td.alice, td.open, 80, td.now.Add(time.Hour))
	submitAt(t, td, td.bob, td.open, 95, td.now)

	otherTeacher := &models.User{
		Username:  "mr.zhao",
		Password:  "hash",
		Role:      models.RoleTeacher,
		RealName:  "Zhao Lei",
		CreatedAt: td.now.Unix(),
	}
	require.NoError(t, td.store.CreateUser(otherTeacher))

	otherExercise := &models.Exercise{
		TeacherID:       otherTeacher.ID,
		Title:           "Another class",
		Content:         "Unrelated text",
		DifficultyLevel: 1,
		CreatedAt:       td.now.Unix(),
		IsActive:        true,
	}
	require.NoError(t, td.store.CreateExercise(otherExercise))
	submitAt(t, td, td.alice, otherExercise, 10, td.now)

	from := td.now.Add(-time.Hour).Unix()
	to := td.now.Add(24 * time.Hour).Unix()

	t.Run("grouped per student, best average first", func(t *testing.T) {
		rows, err := td.store.ClassStats(td.teacher.ID, from, to)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, "bob", rows[0].Username)
		assert.InDelta(t, 95.0, rows[0].AvgScore, 0.01)
		assert.Equal(t, int64(1), rows[0].TotalExercises)

		assert.Equal(t, "alice", rows[1].Username)
		assert.InDelta(t, 85.0, rows[1].AvgScore, 0.01)
		assert.Equal(t, int64(2), rows[1].TotalExercises)
		assert.Equal(t, 90, rows[1].MaxScore)
	})

	t.Run("other teachers' records stay out", func(t *testing.T) {
		rows, err := td.store.ClassStats(otherTeacher.ID, from, to)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "alice", rows[0].Username)
		assert.InDelta(t, 10.0, rows[0].AvgScore, 0.01)
	})

	t.Run("students without records are omitted", func(t *testing.T) {
		rows, err := td.store.ClassStats(otherTeacher.ID, from, to)
		require.NoError(t, err)
		for _, row := range rows {
			assert.NotEqual(t, "bob", row.Username)
		}
	})
}

func TestRebuildDailyStats(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	submitAt(t, td, td.alice, td.open, 70, td.now)
	submitAt(t, td, td.alice, td.open, 90, td.now.Add(time.Hour))

	// corrupt the rollup to simulate drift
	_, err := td.store.DB.Exec(
		`UPDATE attendance_stats SET exercises_completed = 99, total_score = 9, best_score = 1 WHERE student_id = ? AND date = ?`,
		td.alice.ID, "2026-08-15",
	)
	require.NoError(t, err)

	require.NoError(t, td.store.RebuildDailyStats("2026-08-15", td.now.Add(2*time.Hour).Unix()))

	stats, err := td.store.GetAttendance(td.alice.ID, "2026-08-15")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.ExercisesCompleted)
	assert.Equal(t, 160, stats.TotalScore)
	assert.Equal(t, 90, stats.BestScore)
	assert.Equal(t, td.now.Add(2*time.Hour).Unix(), stats.UpdatedAt)
}
