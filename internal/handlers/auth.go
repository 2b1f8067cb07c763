package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/app"
	"github.com/shrimpsizemoose/uttal/internal/models"
)

type AuthHandler struct {
	service *app.Service
}

func NewAuthHandler(service *app.Service) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

type registerRequest struct {
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	Email     *string `json:"email,omitempty"`
	Role      string  `json:"role"`
	RealName  string  `json:"real_name"`
	StudentID *string `json:"student_id,omitempty"`
	ClassName *string `json:"class_name,omitempty"`
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { observe(r, start, http.StatusCreated) }()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Role == "" {
		req.Role = models.RoleStudent
	}

	user := &models.User{
		Username:  req.Username,
		Email:     req.Email,
		Role:      req.Role,
		RealName:  req.RealName,
		StudentID: req.StudentID,
		ClassName: req.ClassName,
	}

	if err := h.service.Register(user, req.Password); err != nil {
		writeError(w, err)
		return
	}

	logger.Info.Printf("Registered %s %s", user.Role, user.Username)
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	user, err := h.service.GetUser(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	if err := h.service.Auth.RevokeToken(r.Context(), claims.Username); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
