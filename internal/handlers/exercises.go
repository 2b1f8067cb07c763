package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/uttal/internal/app"
	"github.com/shrimpsizemoose/uttal/internal/models"
)

type ExerciseHandler struct {
	service *app.Service
}

func NewExerciseHandler(service *app.Service) *ExerciseHandler {
	return &ExerciseHandler{
		service: service,
	}
}

type exerciseRequest struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	DifficultyLevel int    `json:"difficulty_level"`
	StartTime       *int64 `json:"start_time,omitempty"`
	EndTime         *int64 `json:"end_time,omitempty"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

func (h *ExerciseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req exerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.DifficultyLevel == 0 {
		req.DifficultyLevel = 1
	}

	exercise := &models.Exercise{
		Title:           req.Title,
		Content:         req.Content,
		DifficultyLevel: req.DifficultyLevel,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		IsActive:        true,
	}
	if req.IsActive != nil {
		exercise.IsActive = *req.IsActive
	}

	claims := claimsFrom(r)
	if err := h.service.CreateExercise(claims.UserID, exercise); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, exercise)
}

func (h *ExerciseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req exerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	exercise := &models.Exercise{
		ID:              id,
		Title:           req.Title,
		Content:         req.Content,
		DifficultyLevel: req.DifficultyLevel,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		IsActive:        true,
	}
	if req.IsActive != nil {
		exercise.IsActive = *req.IsActive
	}

	claims := claimsFrom(r)
	if err := h.service.UpdateExercise(claims.UserID, exercise); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exercise)
}

func (h *ExerciseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	claims := claimsFrom(r)
	if err := h.service.DeleteExercise(claims.UserID, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleListMine returns the exercises created by the calling teacher.
func (h *ExerciseHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	exercises, err := h.service.ListTeacherExercises(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exercises": exercises,
	})
}

// HandleListAvailable returns active exercises tagged per student:
// submitted, pending, expired or available.
func (h *ExerciseHandler) HandleListAvailable(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	exercises, err := h.service.ListAvailableExercises(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exercises": exercises,
	})
}

func (h *ExerciseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	exercise, err := h.service.GetExercise(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exercise)
}
