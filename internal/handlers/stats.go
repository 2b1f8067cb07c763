package handlers

import (
	"net/http"

	"github.com/shrimpsizemoose/uttal/internal/app"
	"github.com/shrimpsizemoose/uttal/internal/models"
)

type StatsHandler struct {
	service *app.Service
}

func NewStatsHandler(service *app.Service) *StatsHandler {
	return &StatsHandler{
		service: service,
	}
}

// HandleAttendance returns the daily rollup for one student and day,
// zeros when the student has not submitted that day.
func (h *StatsHandler) HandleAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	studentID := claims.UserID
	if claims.Role == models.RoleTeacher {
		if id, err := pathID(r, "id"); err == nil {
			studentID = id
		}
	}

	stats, err := h.service.GetAttendance(studentID, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleStudentStats aggregates the calling student's records over a
// date range, trailing 30 days by default.
func (h *StatsHandler) HandleStudentStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	stats, err := h.service.StudentStats(
		claims.UserID,
		r.URL.Query().Get("from"),
		r.URL.Query().Get("to"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleClassStats aggregates per student over the calling teacher's
// exercises, best average first. Students with no records in range are
// not listed.
func (h *StatsHandler) HandleClassStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	rows, err := h.service.ClassStats(
		claims.UserID,
		r.URL.Query().Get("from"),
		r.URL.Query().Get("to"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"students": rows,
	})
}
