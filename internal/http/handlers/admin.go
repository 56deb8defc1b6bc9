package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/iago/extensao-whatsapp-back/internal/domain"
	"github.com/iago/extensao-whatsapp-back/internal/queue"
)

// AdminAPI exposes operational endpoints not reachable from the signed
// webhook surface; gated by middleware.Auth in the router.
type AdminAPI struct {
	requeuer queue.DeadLetterRequeuer
}

func NewAdminAPI(requeuer queue.DeadLetterRequeuer) *AdminAPI {
	return &AdminAPI{requeuer: requeuer}
}

type requeueRequest struct {
	TenantID      int64  `json:"tenant_id"`
	Number        string `json:"number"`
	Text          string `json:"text"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlation_id"`
}

// RequeueDeadLetter resubmits a previously dead-lettered job for
// reprocessing with its attempt counter reset.
func (api *AdminAPI) RequeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req requeueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "could not decode request body")
		return
	}
	if req.TenantID == 0 || req.Number == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "tenant_id and number are required")
		return
	}

	job := domain.QueueJob{
		TenantID:      req.TenantID,
		Number:        req.Number,
		Text:          req.Text,
		Kind:          domain.MessageKind(req.Kind),
		CorrelationID: req.CorrelationID,
	}
	if err := api.requeuer.RequeueDeadLetter(r.Context(), job); err != nil {
		writeError(w, r, http.StatusInternalServerError, "requeue_failed", "could not requeue job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"requeued": true})
}
