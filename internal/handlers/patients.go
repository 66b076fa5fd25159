package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/storage"
)

type PatientHandler struct {
	repo   *storage.PatientRepository
	logger *slog.Logger
}

func NewPatientHandler(repo *storage.PatientRepository, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{repo: repo, logger: logger}
}

type createPatientRequest struct {
	Cedula string `json:"cedula"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
}

type patientItem struct {
	PatientID string `json:"patient_id"`
	Cedula    string `json:"cedula"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Cedula = strings.TrimSpace(req.Cedula)
	req.Name = strings.TrimSpace(req.Name)
	if req.Cedula == "" || req.Name == "" {
		http.Error(w, "cedula and name required", http.StatusBadRequest)
		return
	}

	p, err := h.repo.Create(r.Context(), req.Cedula, req.Name, strings.TrimSpace(req.Phone), strings.TrimSpace(req.Email))
	if err != nil {
		h.logger.Error("create patient failed", "err", err)
		http.Error(w, "failed to create patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, patientItemFrom(p))
}

// Lookup finds a patient by cedula, the public key booking flows use.
func (h *PatientHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cedula := strings.TrimSpace(r.URL.Query().Get("cedula"))
	if cedula == "" {
		http.Error(w, "cedula required", http.StatusBadRequest)
		return
	}

	p, err := h.repo.GetByCedula(r.Context(), cedula)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("patient lookup failed", "err", err)
		http.Error(w, "failed to look up patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, patientItemFrom(p))
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	patients, err := h.repo.List(r.Context(), 0)
	if err != nil {
		h.logger.Error("list patients failed", "err", err)
		http.Error(w, "failed to list patients", http.StatusInternalServerError)
		return
	}
	items := make([]patientItem, 0, len(patients))
	for _, p := range patients {
		items = append(items, patientItemFrom(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": items})
}

func patientItemFrom(p model.Patient) patientItem {
	return patientItem{
		PatientID: p.ID,
		Cedula:    p.Cedula,
		Name:      p.Name,
		Phone:     p.Phone,
		Email:     p.Email,
	}
}
