package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/storage"
)

type MachineHandler struct {
	repo   *storage.MachineRepository
	logger *slog.Logger
}

func NewMachineHandler(repo *storage.MachineRepository, logger *slog.Logger) *MachineHandler {
	return &MachineHandler{repo: repo, logger: logger}
}

type createMachineRequest struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	SessionMinutes *int   `json:"session_minutes"`
}

type machineItem struct {
	MachineID      string `json:"machine_id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	SessionMinutes *int   `json:"session_minutes,omitempty"`
}

func (h *MachineHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.TrimSpace(req.Type)
	if req.Name == "" || req.Type == "" {
		http.Error(w, "name and type required", http.StatusBadRequest)
		return
	}
	if req.SessionMinutes != nil && *req.SessionMinutes <= 0 {
		http.Error(w, "session_minutes must be positive", http.StatusBadRequest)
		return
	}

	m, err := h.repo.Create(r.Context(), req.Name, req.Type, req.SessionMinutes)
	if err != nil {
		h.logger.Error("create machine failed", "err", err)
		http.Error(w, "failed to create machine", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, machineItemFrom(m))
}

func (h *MachineHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	machines, err := h.repo.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("type")))
	if err != nil {
		h.logger.Error("list machines failed", "err", err)
		http.Error(w, "failed to list machines", http.StatusInternalServerError)
		return
	}
	items := make([]machineItem, 0, len(machines))
	for _, m := range machines {
		items = append(items, machineItemFrom(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"machines": items})
}

type setMachineStatusRequest struct {
	MachineID string `json:"machine_id"`
	Status    string `json:"status"`
}

// SetStatus moves a machine between active, maintenance and retired.
// Only active machines are offered to new bookings.
func (h *MachineHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req setMachineStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MachineID = strings.TrimSpace(req.MachineID)
	status := model.MachineStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if req.MachineID == "" {
		http.Error(w, "machine_id required", http.StatusBadRequest)
		return
	}
	if !status.Valid() {
		http.Error(w, "status must be active, maintenance or retired", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetStatus(r.Context(), req.MachineID, status); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "machine not found", http.StatusNotFound)
			return
		}
		h.logger.Error("set machine status failed", "machine_id", req.MachineID, "err", err)
		http.Error(w, "failed to set machine status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"machine_id": req.MachineID, "status": string(status)})
}

func machineItemFrom(m model.Machine) machineItem {
	return machineItem{
		MachineID:      m.ID,
		Name:           m.Name,
		Type:           m.Type,
		Status:         string(m.Status),
		SessionMinutes: m.SessionMinutes,
	}
}
