package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/app"
	"github.com/shrimpsizemoose/uttal/internal/metrics"
	"github.com/shrimpsizemoose/uttal/internal/models"
)

type RecordHandler struct {
	service *app.Service
}

func NewRecordHandler(service *app.Service) *RecordHandler {
	return &RecordHandler{
		service: service,
	}
}

// readAudioUpload pulls the "audio" part out of a multipart form and
// rejects non-audio content outright.
func (h *RecordHandler) readAudioUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(h.service.Audio.MaxSize()); err != nil {
		return nil, "", app.ErrValidation
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", app.ErrValidation
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "audio/") {
		return nil, "", app.ErrValidation
	}

	data, err := io.ReadAll(io.LimitReader(file, h.service.Audio.MaxSize()+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > h.service.Audio.MaxSize() {
		return nil, "", app.ErrValidation
	}

	return data, header.Filename, nil
}

// HandleSubmit accepts a student's recording for one exercise, scores it
// server-side and stores the record.
func (h *RecordHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusCreated
	defer func() { observe(r, start, status) }()

	claims := claimsFrom(r)

	exerciseID, err := strconv.ParseInt(r.FormValue("exercise_id"), 10, 64)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, map[string]string{"error": "invalid exercise_id"})
		return
	}

	audio, filename, err := h.readAudioUpload(r)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, map[string]string{"error": "audio upload is missing or not audio"})
		return
	}

	result, err := h.service.Submit(r.Context(), claims.UserID, exerciseID, audio, filename)
	if err != nil {
		status = statusFor(err)
		writeError(w, err)
		return
	}

	metrics.SubmissionsTotal.WithLabelValues(result.Record.Status).Inc()
	metrics.ScoreHistogram.Observe(float64(result.Record.Score))
	if result.Degraded {
		metrics.EvaluationFallbacks.Inc()
	}

	logger.Info.Printf(
		"Student %s submitted exercise %d, score=%d degraded=%t",
		claims.Username, exerciseID, result.Record.Score, result.Degraded,
	)
	writeJSON(w, status, result)
}

// HandleEvaluate scores audio against an arbitrary text without saving a
// record. Used by the practice screen before a real submission.
func (h *RecordHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	audio, _, err := h.readAudioUpload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio upload is missing or not audio"})
		return
	}

	evaluation, degraded, err := h.service.EvaluateOnly(r.Context(), audio, r.FormValue("text"))
	if err != nil {
		writeError(w, err)
		return
	}
	if degraded {
		metrics.EvaluationFallbacks.Inc()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"evaluation": evaluation,
		"degraded":   degraded,
	})
}

// HandleMyRecords returns the calling student's recent submissions,
// newest first, 10 by default.
func (h *RecordHandler) HandleMyRecords(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.service.ListStudentRecords(claims.UserID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

func (h *RecordHandler) HandleExerciseRecords(w http.ResponseWriter, r *http.Request) {
	exerciseID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	claims := claimsFrom(r)
	records, err := h.service.ListExerciseRecords(claims.UserID, exerciseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

// HandlePending lists submissions still waiting for any teacher feedback.
func (h *RecordHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListPendingRecords()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

// HandleMyFeedback lists the calling student's reviewed or commented
// submissions.
func (h *RecordHandler) HandleMyFeedback(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	records, err := h.service.ListStudentFeedback(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

func (h *RecordHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Status       string `json:"status"`
		Feedback     string `json:"feedback"`
		FeedbackType string `json:"feedback_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	claims := claimsFrom(r)
	if err := h.service.Review(claims.UserID, recordID, req.Status, req.Feedback, req.FeedbackType); err != nil {
		writeError(w, err)
		return
	}

	metrics.ReviewsTotal.WithLabelValues(req.Status).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *RecordHandler) HandleAttachFeedback(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Feedback     string `json:"feedback"`
		FeedbackType string `json:"feedback_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.service.AttachFeedback(recordID, req.Feedback, req.FeedbackType); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "feedback attached"})
}

// HandleAudio streams the stored recording for one submission. Students
// can only fetch their own; teachers can fetch any.
func (h *RecordHandler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.service.GetRecord(recordID)
	if err != nil {
		writeError(w, err)
		return
	}

	claims := claimsFrom(r)
	if claims.Role != models.RoleTeacher && claims.UserID != record.StudentID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not your record"})
		return
	}

	if record.AudioPath == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no audio stored"})
		return
	}

	data, err := h.service.Audio.Open(*record.AudioPath)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}
