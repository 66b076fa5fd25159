package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/storage"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

type TherapistHandler struct {
	repo   *storage.TherapistRepository
	logger *slog.Logger
}

func NewTherapistHandler(repo *storage.TherapistRepository, logger *slog.Logger) *TherapistHandler {
	return &TherapistHandler{repo: repo, logger: logger}
}

type availabilityWindowItem struct {
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type createTherapistRequest struct {
	Name      string                   `json:"name"`
	Specialty string                   `json:"specialty"`
	Windows   []availabilityWindowItem `json:"availability"`
}

type therapistItem struct {
	TherapistID string                   `json:"therapist_id"`
	Name        string                   `json:"name"`
	Specialty   string                   `json:"specialty"`
	Windows     []availabilityWindowItem `json:"availability,omitempty"`
}

func (h *TherapistHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createTherapistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	specialty := model.Specialty(strings.ToLower(strings.TrimSpace(req.Specialty)))
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if !specialty.Valid() {
		http.Error(w, "specialty must be physical or occupational", http.StatusBadRequest)
		return
	}
	windows, err := parseWindows(req.Windows)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.repo.Create(r.Context(), req.Name, specialty, windows)
	if err != nil {
		h.logger.Error("create therapist failed", "err", err)
		http.Error(w, "failed to create therapist", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, therapistItemFrom(t))
}

func (h *TherapistHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	therapists, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list therapists failed", "err", err)
		http.Error(w, "failed to list therapists", http.StatusInternalServerError)
		return
	}
	items := make([]therapistItem, 0, len(therapists))
	for _, t := range therapists {
		items = append(items, therapistItemFrom(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"therapists": items})
}

type setAvailabilityRequest struct {
	TherapistID string                   `json:"therapist_id"`
	Windows     []availabilityWindowItem `json:"availability"`
}

// SetAvailability replaces the therapist's whole weekly schedule.
func (h *TherapistHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req setAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	if req.TherapistID == "" {
		http.Error(w, "therapist_id required", http.StatusBadRequest)
		return
	}
	windows, err := parseWindows(req.Windows)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.ReplaceWindows(r.Context(), req.TherapistID, windows); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "therapist not found", http.StatusNotFound)
			return
		}
		h.logger.Error("set availability failed", "therapist_id", req.TherapistID, "err", err)
		http.Error(w, "failed to set availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"therapist_id": req.TherapistID, "status": "updated"})
}

type deleteTherapistRequest struct {
	TherapistID string `json:"therapist_id"`
}

// Delete removes a therapist. Their past appointments stay on the
// calendar with the therapist reference cleared.
func (h *TherapistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteTherapistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	if req.TherapistID == "" {
		http.Error(w, "therapist_id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), req.TherapistID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "therapist not found", http.StatusNotFound)
			return
		}
		h.logger.Error("delete therapist failed", "therapist_id", req.TherapistID, "err", err)
		http.Error(w, "failed to delete therapist", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"therapist_id": req.TherapistID, "status": "deleted"})
}

func parseWindows(items []availabilityWindowItem) ([]model.AvailabilityWindow, error) {
	windows := make([]model.AvailabilityWindow, 0, len(items))
	for _, item := range items {
		if item.Weekday < 0 || item.Weekday > 6 {
			return nil, errors.New("weekday must be 0 (Sunday) through 6 (Saturday)")
		}
		if !timeutil.ValidClock(item.StartTime) || !timeutil.ValidClock(item.EndTime) {
			return nil, errors.New("window times must be HH:MM")
		}
		start := timeutil.Minutes(item.StartTime)
		end := timeutil.Minutes(item.EndTime)
		if end <= start {
			return nil, errors.New("window end must be after start")
		}
		windows = append(windows, model.AvailabilityWindow{
			Weekday:     item.Weekday,
			StartMinute: start,
			EndMinute:   end,
		})
	}
	return windows, nil
}

func therapistItemFrom(t model.Therapist) therapistItem {
	item := therapistItem{
		TherapistID: t.ID,
		Name:        t.Name,
		Specialty:   string(t.Specialty),
	}
	for _, win := range t.Windows {
		item.Windows = append(item.Windows, availabilityWindowItem{
			Weekday:   win.Weekday,
			StartTime: timeutil.Clock(win.StartMinute),
			EndTime:   timeutil.Clock(win.EndMinute),
		})
	}
	return item
}
