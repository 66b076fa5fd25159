package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/storage"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

// AppointmentHandler serves the calendar CRUD surface over rows that
// already exist.
type AppointmentHandler struct {
	repo   *storage.AppointmentRepository
	logger *slog.Logger
}

func NewAppointmentHandler(repo *storage.AppointmentRepository, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{repo: repo, logger: logger}
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := storage.ListFilter{
		TherapistID: strings.TrimSpace(q.Get("therapist_id")),
		MachineID:   strings.TrimSpace(q.Get("machine_id")),
		PatientID:   strings.TrimSpace(q.Get("patient_id")),
		Status:      strings.TrimSpace(q.Get("status")),
	}
	if s := strings.TrimSpace(q.Get("date")); s != "" {
		d, err := timeutil.ParseDate(s)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.Date = d
	}
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	appts, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentItemFrom(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type updateAppointmentRequest struct {
	AppointmentID   string  `json:"appointment_id"`
	Date            *string `json:"date"`
	StartTime       *string `json:"start_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	TherapistID     *string `json:"therapist_id"`
	MachineID       *string `json:"machine_id"`
	Status          *string `json:"status"`
	Notes           *string `json:"notes"`
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	var patch storage.AppointmentUpdate
	if req.Date != nil {
		d, err := timeutil.ParseDate(*req.Date)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		patch.Date = &d
	}
	if req.StartTime != nil {
		if !timeutil.ValidClock(*req.StartTime) {
			http.Error(w, "start_time must be HH:MM", http.StatusBadRequest)
			return
		}
		m := timeutil.Minutes(*req.StartTime)
		patch.StartMinute = &m
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			http.Error(w, "duration_minutes must be positive", http.StatusBadRequest)
			return
		}
		patch.DurationMinutes = req.DurationMinutes
	}
	patch.TherapistID = req.TherapistID
	patch.MachineID = req.MachineID
	if req.Status != nil {
		status := model.AppointmentStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		patch.Status = &status
	}
	patch.Notes = req.Notes

	updated, err := h.repo.Update(r.Context(), req.AppointmentID, patch)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		h.logger.Error("update appointment failed", "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appointmentItemFrom(updated))
}

type deleteAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), req.AppointmentID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("delete appointment failed", "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "failed to delete appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"appointment_id": req.AppointmentID, "status": "deleted"})
}
