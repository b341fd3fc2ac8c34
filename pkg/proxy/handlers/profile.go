package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/profile"
	"mercator-hq/relay/pkg/proxy"
)

// maxProfileBytes bounds an admin update body.
const maxProfileBytes = 1 << 20

// profileUpdate is a partial update; nil fields are left unchanged.
type profileUpdate struct {
	Persona   *string `json:"persona"`
	Knowledge *string `json:"knowledge"`
	Rule      *string `json:"rule"`
}

// ProfileHandler serves GET and PUT /admin/profile.
type ProfileHandler struct {
	store    *profile.Store
	onUpdate func(profile.Snapshot)
	logger   *slog.Logger
}

// NewProfileHandler creates the admin profile handler. onUpdate, if set, is
// called with every snapshot installed through the handler.
func NewProfileHandler(store *profile.Store, onUpdate func(profile.Snapshot), logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{store: store, onUpdate: onUpdate, logger: logger}
}

// ServeHTTP returns the current snapshot on GET and applies a partial
// update on PUT. An update swaps the whole snapshot at once; dispatches
// already running keep the snapshot they started with.
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var err error
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		err = proxy.WriteJSONResponse(w, http.StatusOK, h.store.Load())
	case http.MethodPut:
		err = h.update(w, r)
	default:
		err = proxy.MethodNotAllowed(w, "GET, PUT")
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProfileBytes))
	dec.DisallowUnknownFields()

	var upd profileUpdate
	if err := dec.Decode(&upd); err != nil {
		h.logger.WarnContext(ctx, "rejected profile update", "error", err)
		return proxy.WriteErrorResponse(w, http.StatusBadRequest, "Malformed request")
	}
	if upd.Persona == nil && upd.Knowledge == nil && upd.Rule == nil {
		return proxy.WriteErrorResponse(w, http.StatusBadRequest, "No profile fields to update")
	}

	snap := h.store.Update(func(cur profile.Snapshot) profile.Snapshot {
		if upd.Persona != nil {
			cur.Persona = strings.TrimSpace(*upd.Persona)
		}
		if upd.Knowledge != nil {
			cur.Knowledge = strings.TrimSpace(*upd.Knowledge)
		}
		if upd.Rule != nil {
			cur.Rule = strings.TrimSpace(*upd.Rule)
		}
		return cur
	})

	h.logger.InfoContext(ctx, "profile updated",
		"version", snap.Version,
		"persona_chars", len(snap.Persona),
		"knowledge_chars", len(snap.Knowledge),
	)
	if h.onUpdate != nil {
		h.onUpdate(snap)
	}

	return proxy.WriteJSONResponse(w, http.StatusOK, snap)
}
