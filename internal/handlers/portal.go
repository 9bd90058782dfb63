package handlers

import (
	"errors"
	"strconv"
	"time"

	"encoding/json"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/app"
	"github.com/classy-portal/classy/internal/metrics"
	"github.com/classy-portal/classy/internal/models"
	"github.com/classy-portal/classy/internal/sdmm"
)

type PortalHandler struct {
	service *app.Service
}

func NewPortalHandler(service *app.Service) *PortalHandler {
	return &PortalHandler{
		service: service,
	}
}

type provisionRequest struct {
	PersonIDs []string `json:"personIds"`
}

// HandleStatus serves the learner dashboard: current stage plus grades.
// Unknown people are handed to the course policy, which for the self-paced
// course registers them on first contact.
func (h *PortalHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	personID := r.Header.Get(h.service.Config.API.PersonIDHeader)
	if personID == "" {
		http.Error(w, "Invalid person id specified", http.StatusUnauthorized)
		return
	}

	if err := h.service.ValidateAuthAndPerson(r, personID); err != nil {
		logger.Error.Printf("Auth failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.service.Orchestrator.GetStatus(personID)
	if errors.Is(err, sdmm.ErrUnknownPerson) {
		person, perr := h.service.Policy.HandleUnknownUser(personID)
		if perr != nil {
			logger.Error.Printf("Failed to handle unknown person %s: %v", personID, perr)
			http.Error(w, "Failed to fetch status", http.StatusInternalServerError)
			return
		}
		if person == nil {
			writeUserError(w, http.StatusBadRequest, err)
			return
		}
		status, err = h.service.Orchestrator.GetStatus(person.ID)
	}
	if err != nil {
		logger.Error.Printf("Failed to fetch status for %s: %v", personID, err)
		http.Error(w, "Failed to fetch status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Error.Printf("Failed to encode status: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// HandleProvision runs a provisioning action for the requester and the
// teammates listed in the body. The requester always goes first.
func (h *PortalHandler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code := http.StatusOK
	defer func() {
		duration := time.Since(start).Seconds()
		metrics.APIRequestDuration.WithLabelValues(
			r.URL.Path,
			r.Method,
			strconv.Itoa(code),
		).Observe(duration)
	}()

	if r.Method != http.MethodPost {
		code = http.StatusMethodNotAllowed
		http.Error(w, "Method not allowed", code)
		return
	}

	delivID := r.PathValue("delivId")
	if delivID == "" {
		logger.Error.Printf("Failed to extract deliverable from path: %s", r.URL.Path)
		code = http.StatusBadRequest
		http.Error(w, "Invalid deliverable", code)
		return
	}

	personID := r.Header.Get(h.service.Config.API.PersonIDHeader)
	if personID == "" {
		code = http.StatusUnauthorized
		http.Error(w, "Invalid person id specified", code)
		return
	}

	if err := h.service.ValidateAuthAndPerson(r, personID); err != nil {
		logger.Error.Printf("Auth failed: %v", err)
		code = http.StatusUnauthorized
		http.Error(w, "Unauthorized", code)
		return
	}

	var req provisionRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			code = http.StatusBadRequest
			http.Error(w, "Invalid request body", code)
			return
		}
	}

	personIDs := req.PersonIDs
	if len(personIDs) == 0 || personIDs[0] != personID {
		personIDs = append([]string{personID}, personIDs...)
	}

	payload, err := h.service.Orchestrator.Provision(r.Context(), delivID, personIDs)
	if err != nil {
		code = provisionStatusCode(err)
		writeUserError(w, code, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error.Printf("Failed to encode provision response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// HandleAutoTestGrade ingests a grade posted by the AutoTest backend. This
// endpoint is service-to-service, gated by the shared required headers rather
// than a person token.
func (h *PortalHandler) HandleAutoTestGrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	var grade models.AutoTestGrade
	if err := json.NewDecoder(r.Body).Decode(&grade); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	accepted, err := h.service.Grades.ProcessAutoTestGrade(&grade)
	if err != nil {
		logger.Error.Printf("Failed to process autotest grade: %v", err)
		http.Error(w, "Failed to save grade", http.StatusInternalServerError)
		return
	}
	if !accepted {
		metrics.AutoTestGradesTotal.WithLabelValues(grade.DelivID, "rejected").Inc()
		http.Error(w, "Invalid grade payload", http.StatusBadRequest)
		return
	}

	metrics.AutoTestGradesTotal.WithLabelValues(grade.DelivID, "accepted").Inc()

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func provisionStatusCode(err error) int {
	switch {
	case errors.Is(err, sdmm.ErrInvalidArgument),
		errors.Is(err, sdmm.ErrUnknownPerson),
		errors.Is(err, sdmm.ErrNotProvisionable),
		errors.Is(err, sdmm.ErrInsufficientGrade):
		return http.StatusBadRequest
	case errors.Is(err, sdmm.ErrAlreadyProvisioned),
		errors.Is(err, sdmm.ErrAlreadyAssigned):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeUserError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"failure": map[string]string{
			"message": sdmm.UserMessage(err),
		},
	})
}
