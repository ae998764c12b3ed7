package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

// IntegrityHandler handles ledger Merkle tree verification endpoints
type IntegrityHandler struct {
	svc    *services.MerkleService
	worker *services.IntegrityWorker
	logger *zap.SugaredLogger
}

// NewIntegrityHandler creates a new integrity handler
func NewIntegrityHandler(svc *services.MerkleService, worker *services.IntegrityWorker, logger *zap.SugaredLogger) *IntegrityHandler {
	return &IntegrityHandler{svc: svc, worker: worker, logger: logger}
}

// verifyRequest is the body of POST /admin/ledger/verify. An empty root
// means the currently published one.
type verifyRequest struct {
	LeafHash string             `json:"leaf_hash" validate:"required,hexadecimal"`
	Proof    []models.ProofStep `json:"proof" validate:"dive"`
	Root     string             `json:"root" validate:"omitempty,hexadecimal"`
}

// GetRoot handles GET /api/v1/admin/ledger/root
func (h *IntegrityHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	root := h.svc.GetRoot()
	w.Header().Set("X-Merkle-Root", root)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"root":       root,
		"leaf_count": h.svc.GetLeafCount(),
		"timestamp":  h.svc.GetLastBuildTime(),
	})
}

// GetProof handles GET /api/v1/admin/ledger/proof/{index}
func (h *IntegrityHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	indexStr := chi.URLParam(r, "index")
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid index")
		return
	}

	proof, err := h.svc.GetProof(index)
	if err != nil {
		respondError(w, http.StatusNotFound, "Proof not available for index")
		return
	}

	respondJSON(w, http.StatusOK, proof)
}

// Verify handles POST /api/v1/admin/ledger/verify
func (h *IntegrityHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	root := req.Root
	if root == "" {
		root = h.svc.GetRoot()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"root":     root,
		"verified": services.VerifyProof(req.LeafHash, req.Proof, root),
	})
}

// Check handles GET /api/v1/admin/ledger/check
func (h *IntegrityHandler) Check(w http.ResponseWriter, r *http.Request) {
	check, err := h.worker.Check(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "check ledger", err)
		return
	}
	respondJSON(w, http.StatusOK, check)
}
