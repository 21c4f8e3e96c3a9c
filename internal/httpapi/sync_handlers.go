package httpapi

import (
	"net/http"

	"clinicbase.org/internal/obs"
	"clinicbase.org/internal/sync"
)

func (a *API) handlePull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	var req sync.PullRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.LastPulledAt < 0 {
		writeError(w, r, http.StatusBadRequest, "last_pulled_at must not be negative")
		return
	}

	resp, err := a.puller.Pull(r.Context(), req)
	if err != nil {
		obs.Warn("pull failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "pull failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	var req sync.PushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result := a.ingester.Push(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}
