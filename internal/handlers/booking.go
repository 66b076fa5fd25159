package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/schedule"
	"github.com/ariel-montero/clinicsched/internal/storage"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

// BookingHandler fronts the allocation engine: slot proposals, previews,
// and single or recurring commits.
type BookingHandler struct {
	engine *schedule.Engine
	idem   *storage.IdempotencyRepository
	logger *slog.Logger
}

func NewBookingHandler(engine *schedule.Engine, idem *storage.IdempotencyRepository, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, idem: idem, logger: logger}
}

type bookingRequest struct {
	TherapyType          string `json:"therapy_type"`
	DurationMinutes      int    `json:"duration_minutes"`
	MachineType          string `json:"machine_type"`
	MachineID            string `json:"machine_id"`
	Date                 string `json:"date"`
	StartTime            string `json:"start_time"`
	DayStart             string `json:"day_start"`
	DayEnd               string `json:"day_end"`
	PreferredTherapistID string `json:"preferred_therapist_id"`
	PatientCedula        string `json:"patient_cedula"`
	Notes                string `json:"notes"`
	ExactOnly            bool   `json:"exact_only"`
	Occurrences          int    `json:"occurrences"`
}

type slotResponse struct {
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	DurationMinutes  int    `json:"duration_minutes"`
	Adjusted         bool   `json:"adjusted"`
	TherapistID      string `json:"therapist_id,omitempty"`
	TherapistName    string `json:"therapist_name,omitempty"`
	PhysicalID       string `json:"physical_therapist_id,omitempty"`
	PhysicalName     string `json:"physical_therapist_name,omitempty"`
	OccupationalID   string `json:"occupational_therapist_id,omitempty"`
	OccupationalName string `json:"occupational_therapist_name,omitempty"`
	MachineID        string `json:"machine_id"`
	MachineName      string `json:"machine_name"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	PatientID       string `json:"patient_id,omitempty"`
	PatientName     string `json:"patient_name,omitempty"`
	TherapistID     string `json:"therapist_id,omitempty"`
	MachineID       string `json:"machine_id,omitempty"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	BatchID         string `json:"batch_id,omitempty"`
}

type bookResponse struct {
	Appointments []appointmentItem `json:"appointments"`
	Adjusted     bool              `json:"adjusted"`
	BatchID      string            `json:"batch_id,omitempty"`
}

type previewItem struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	TherapistID     string `json:"therapist_id,omitempty"`
	TherapistName   string `json:"therapist_name,omitempty"`
	MachineID       string `json:"machine_id,omitempty"`
	MachineName     string `json:"machine_name,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func (h *BookingHandler) Propose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	slotReq, _, ok := h.decode(w, r)
	if !ok {
		return
	}

	prop, err := h.engine.ProposeSlot(r.Context(), slotReq)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotResponseFrom(prop))
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	slotReq, _, ok := h.decode(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		res, err := h.engine.Book(ctx, slotReq)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bookResponseFrom(res))
		return
	}

	// Holding the key FOR UPDATE across the engine call makes a
	// concurrent retry with the same key wait for this outcome.
	tx, err := h.idem.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, done, err := h.idem.LockKey(ctx, tx, idempotencyKey)
	if err != nil {
		http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
		return
	}
	if done {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.ResponsePayload)
		return
	}

	res, err := h.engine.Book(ctx, slotReq)
	if err != nil {
		// Transient failures leave the key open so the client can retry.
		if errors.Is(err, schedule.ErrSlotLocked) {
			h.writeEngineError(w, err)
			return
		}
		status, msg := engineErrorStatus(err)
		body, _ := json.Marshal(map[string]string{"error": msg})
		if ferr := h.idem.Finalize(ctx, tx, idempotencyKey, status, body); ferr == nil {
			_ = tx.Commit(ctx)
		}
		http.Error(w, msg, status)
		return
	}

	respBody, err := json.Marshal(bookResponseFrom(res))
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if err := h.idem.Finalize(ctx, tx, idempotencyKey, http.StatusCreated, respBody); err != nil {
		http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *BookingHandler) BookSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, seriesReq, ok := h.decode(w, r)
	if !ok {
		return
	}
	if seriesReq.Occurrences <= 0 {
		http.Error(w, "occurrences must be positive", http.StatusBadRequest)
		return
	}

	appts, err := h.engine.BookSeries(r.Context(), seriesReq)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	resp := bookResponse{Appointments: make([]appointmentItem, 0, len(appts))}
	for _, a := range appts {
		resp.Appointments = append(resp.Appointments, appointmentItemFrom(a))
	}
	if len(appts) > 0 && appts[0].BatchID != nil {
		resp.BatchID = *appts[0].BatchID
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Preview runs the same planning as Book or BookSeries without writing
// anything. Occurrences selects between the two shapes.
func (h *BookingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	slotReq, seriesReq, ok := h.decode(w, r)
	if !ok {
		return
	}

	var visits []schedule.ProjectedVisit
	var err error
	if seriesReq.Occurrences > 0 {
		visits, err = h.engine.PreviewSeries(r.Context(), seriesReq)
	} else {
		visits, err = h.engine.PreviewSlot(r.Context(), slotReq)
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	items := make([]previewItem, 0, len(visits))
	for _, v := range visits {
		items = append(items, previewItem{
			Date:            v.Date.Format(timeutil.DateLayout),
			StartTime:       timeutil.Clock(v.StartMin),
			DurationMinutes: v.DurationMinutes,
			TherapistID:     v.TherapistID,
			TherapistName:   v.TherapistName,
			MachineID:       v.MachineID,
			MachineName:     v.MachineName,
			Notes:           v.Notes,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"visits": items})
}

// decode parses the shared booking request body into both request
// shapes. It writes the error response itself when parsing fails.
func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request) (schedule.SlotRequest, schedule.SeriesRequest, bool) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return schedule.SlotRequest{}, schedule.SeriesRequest{}, false
	}

	c, err := criteriaFrom(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return schedule.SlotRequest{}, schedule.SeriesRequest{}, false
	}
	return schedule.SlotRequest{Criteria: c, ExactOnly: req.ExactOnly},
		schedule.SeriesRequest{Criteria: c, Occurrences: req.Occurrences},
		true
}

func criteriaFrom(req bookingRequest) (schedule.Criteria, error) {
	c := schedule.Criteria{
		Therapy:              schedule.TherapyType(strings.ToLower(strings.TrimSpace(req.TherapyType))),
		DurationMinutes:      req.DurationMinutes,
		MachineType:          strings.TrimSpace(req.MachineType),
		MachineID:            strings.TrimSpace(req.MachineID),
		StartMin:             -1,
		PreferredTherapistID: strings.TrimSpace(req.PreferredTherapistID),
		PatientCedula:        strings.TrimSpace(req.PatientCedula),
		Notes:                strings.TrimSpace(req.Notes),
	}
	if !c.Therapy.Valid() {
		return c, errors.New("therapy_type must be physical, occupational or combined")
	}
	if req.DurationMinutes < 0 {
		return c, errors.New("duration_minutes must not be negative")
	}

	if s := strings.TrimSpace(req.Date); s != "" {
		d, err := timeutil.ParseDate(s)
		if err != nil {
			return c, errors.New("date must be YYYY-MM-DD")
		}
		c.Date = d
	}
	var err error
	if c.StartMin, err = parseClockField(req.StartTime, "start_time", -1); err != nil {
		return c, err
	}
	if c.DayStartMin, err = parseClockField(req.DayStart, "day_start", 0); err != nil {
		return c, err
	}
	if c.DayEndMin, err = parseClockField(req.DayEnd, "day_end", 0); err != nil {
		return c, err
	}
	return c, nil
}

func parseClockField(s, name string, empty int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return empty, nil
	}
	if !timeutil.ValidClock(s) {
		return 0, errors.New(name + " must be HH:MM")
	}
	return timeutil.Minutes(s), nil
}

func slotResponseFrom(p *schedule.Proposal) slotResponse {
	return slotResponse{
		Date:             p.Date.Format(timeutil.DateLayout),
		StartTime:        timeutil.Clock(p.StartMin),
		EndTime:          timeutil.Clock(p.StartMin + p.DurationMinutes),
		DurationMinutes:  p.DurationMinutes,
		Adjusted:         p.Adjusted,
		TherapistID:      p.TherapistID,
		TherapistName:    p.TherapistName,
		PhysicalID:       p.PhysicalID,
		PhysicalName:     p.PhysicalName,
		OccupationalID:   p.OccupationalID,
		OccupationalName: p.OccupationalName,
		MachineID:        p.MachineID,
		MachineName:      p.MachineName,
	}
}

func bookResponseFrom(res *schedule.BookingResult) bookResponse {
	resp := bookResponse{
		Appointments: make([]appointmentItem, 0, len(res.Created)),
		Adjusted:     res.Adjusted,
	}
	for _, a := range res.Created {
		resp.Appointments = append(resp.Appointments, appointmentItemFrom(a))
		if a.BatchID != nil {
			resp.BatchID = *a.BatchID
		}
	}
	return resp
}

func appointmentItemFrom(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:   a.ID,
		Date:            a.Date.Format(timeutil.DateLayout),
		StartTime:       timeutil.Clock(a.StartMinute),
		EndTime:         timeutil.Clock(a.EndMinute()),
		DurationMinutes: a.DurationMinutes,
		PatientName:     a.PatientName,
		Status:          string(a.Status),
		Notes:           a.Notes,
	}
	if a.PatientID != nil {
		item.PatientID = *a.PatientID
	}
	if a.TherapistID != nil {
		item.TherapistID = *a.TherapistID
	}
	if a.MachineID != nil {
		item.MachineID = *a.MachineID
	}
	if a.BatchID != nil {
		item.BatchID = *a.BatchID
	}
	return item
}

func (h *BookingHandler) writeEngineError(w http.ResponseWriter, err error) {
	status, msg := engineErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("booking request failed", "err", err)
	}
	http.Error(w, msg, status)
}

func engineErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, schedule.ErrPatientNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, schedule.ErrNoSlotAvailable),
		errors.Is(err, schedule.ErrNoCandidateForSeries),
		errors.Is(err, schedule.ErrNoSlotForSeries):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, schedule.ErrSlotConflict), errors.Is(err, schedule.ErrSlotLocked):
		return http.StatusConflict, err.Error()
	case storage.IsConflict(err):
		return http.StatusConflict, "time slot already booked"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
