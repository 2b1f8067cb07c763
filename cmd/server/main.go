package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/app"
	"github.com/shrimpsizemoose/uttal/internal/handlers"
	"github.com/shrimpsizemoose/uttal/internal/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug.Printf("No .env file loaded: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.toml"
	}

	service, err := app.NewService(configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to init service: %v", err)
	}
	defer service.Close()

	authHandler := handlers.NewAuthHandler(service)
	userHandler := handlers.NewUserHandler(service)
	exerciseHandler := handlers.NewExerciseHandler(service)
	recordHandler := handlers.NewRecordHandler(service)
	statsHandler := handlers.NewStatsHandler(service)

	teacher := func(next http.HandlerFunc) http.HandlerFunc {
		return handlers.RequireRole(service, models.RoleTeacher, next)
	}
	student := func(next http.HandlerFunc) http.HandlerFunc {
		return handlers.RequireRole(service, models.RoleStudent, next)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return handlers.RequireAuth(service, next)
	}

	http.HandleFunc("POST /api/auth/register", authHandler.HandleRegister)
	http.HandleFunc("POST /api/auth/login", authHandler.HandleLogin)
	http.HandleFunc("POST /api/auth/logout", authed(authHandler.HandleLogout))
	http.HandleFunc("GET /api/auth/profile", authed(authHandler.HandleProfile))

	http.HandleFunc("GET /api/users", teacher(userHandler.HandleList))
	http.HandleFunc("PUT /api/users/{id}", teacher(userHandler.HandleUpdate))
	http.HandleFunc("DELETE /api/users/{id}", teacher(userHandler.HandleDelete))
	http.HandleFunc("POST /api/users/import", teacher(userHandler.HandleImport))

	http.HandleFunc("POST /api/exercises", teacher(exerciseHandler.HandleCreate))
	http.HandleFunc("GET /api/exercises", teacher(exerciseHandler.HandleListMine))
	http.HandleFunc("GET /api/exercises/available", student(exerciseHandler.HandleListAvailable))
	http.HandleFunc("GET /api/exercises/{id}", authed(exerciseHandler.HandleGet))
	http.HandleFunc("PUT /api/exercises/{id}", teacher(exerciseHandler.HandleUpdate))
	http.HandleFunc("DELETE /api/exercises/{id}", teacher(exerciseHandler.HandleDelete))
	http.HandleFunc("GET /api/exercises/{id}/records", teacher(recordHandler.HandleExerciseRecords))

	http.HandleFunc("POST /api/records", student(recordHandler.HandleSubmit))
	http.HandleFunc("GET /api/records/my", student(recordHandler.HandleMyRecords))
	http.HandleFunc("GET /api/records/pending", teacher(recordHandler.HandlePending))
	http.HandleFunc("GET /api/records/feedback", authed(recordHandler.HandleMyFeedback))
	http.HandleFunc("POST /api/records/{id}/review", teacher(recordHandler.HandleReview))
	http.HandleFunc("POST /api/records/{id}/feedback", teacher(recordHandler.HandleAttachFeedback))
	http.HandleFunc("GET /api/records/{id}/audio", authed(recordHandler.HandleAudio))

	http.HandleFunc("POST /api/evaluate", authed(recordHandler.HandleEvaluate))

	http.HandleFunc("GET /api/stats/attendance", authed(statsHandler.HandleAttendance))
	http.HandleFunc("GET /api/stats/attendance/{id}", teacher(statsHandler.HandleAttendance))
	http.HandleFunc("GET /api/stats/student", student(statsHandler.HandleStudentStats))
	http.HandleFunc("GET /api/stats/class", teacher(statsHandler.HandleClassStats))

	http.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	http.Handle("/metrics", promhttp.Handler())

	logger.Info.Printf("Starting uttal server on %s", service.Config.Server.Port)
	if err := http.ListenAndServe(service.Config.Server.Port, nil); err != nil {
		logger.Error.Fatalf("Uttal server failed: %v", err)
	}
}
