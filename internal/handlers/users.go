package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/app"
	"github.com/shrimpsizemoose/uttal/internal/models"
)

// UserHandler covers the teacher-only account management surface.
type UserHandler struct {
	service *app.Service
}

func NewUserHandler(service *app.Service) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}

func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Username  string  `json:"username"`
		Password  string  `json:"password"`
		Email     *string `json:"email,omitempty"`
		Role      string  `json:"role"`
		RealName  string  `json:"real_name"`
		StudentID *string `json:"student_id,omitempty"`
		ClassName *string `json:"class_name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user := &models.User{
		ID:        id,
		Username:  req.Username,
		Email:     req.Email,
		Role:      req.Role,
		RealName:  req.RealName,
		StudentID: req.StudentID,
		ClassName: req.ClassName,
	}

	if err := h.service.UpdateUser(user, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	claims := claimsFrom(r)
	if claims.UserID == id {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot delete own account"})
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *UserHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Students []app.ImportRow `json:"students"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Students) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "students list is empty"})
		return
	}

	result, err := h.service.ImportStudents(req.Students)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.Info.Printf("Imported students: created=%d skipped=%d", result.Created, result.Skipped)
	writeJSON(w, http.StatusOK, result)
}
