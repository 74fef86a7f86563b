package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/hurttlocker/intake/internal/catalog"
	"github.com/hurttlocker/intake/internal/intake"
	"github.com/hurttlocker/intake/internal/record"
	"github.com/hurttlocker/intake/internal/store"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleChat(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := s.engine.HandleTurn(r.Context(), kind, req.SessionID, req.Message, intake.TurnMeta{
			UserIP:    clientIP(r),
			UserAgent: r.UserAgent(),
		})
		switch {
		case errors.Is(err, intake.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			s.log.Error("turn failed", "kind", kind, "session_id", req.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not process message")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleHistory serves a session's turns. ?kind=survey selects survey sessions.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	kind := record.KindInterview
	if k := r.URL.Query().Get("kind"); k != "" {
		var ok bool
		if kind, ok = record.ParseKind(k); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", k))
			return
		}
	}
	sess, err := s.engine.Session(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": chi.URLParam(r, "id"),
		"kind":       kind,
		"turns":      sess.Turns,
		"progress":   sess.Progress,
		"completed":  sess.Record.Completed,
	})
}

func (s *Server) handleList(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := listOpts(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list, err := s.engine.Records(r.Context(), kind, opts, s.now())
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listOpts(r *http.Request) (store.ListOpts, error) {
	var opts store.ListOpts
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid %s %q", name, v)
		}
		*dst = n
	}
	return opts, nil
}

func (s *Server) handleRecordGet(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.engine.Session(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func (s *Server) handleRecordUpdate(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]interface{}
		if err := decodeJSON(w, r, &fields); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(fields) == 0 {
			writeError(w, http.StatusBadRequest, "no fields to update")
			return
		}
		rec, err := s.engine.UpdateFields(r.Context(), kind, chi.URLParam(r, "id"), fields)
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleRecordDelete(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// handleAudit runs an audit pass. ?overwrite=true replaces existing values.
func (s *Server) handleAudit(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
		report, err := s.engine.Audit(r.Context(), kind, chi.URLParam(r, "id"), overwrite)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.storeError(w, err)
				return
			}
			s.log.Error("audit failed", "kind", kind, "session_id", chi.URLParam(r, "id"), "error", err)
			writeError(w, http.StatusBadGateway, "audit failed")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// storeError maps engine and store errors to status codes.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, intake.ErrUnknownField), errors.Is(err, intake.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Job catalog ---

type jobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  s.catalog.List(),
		"total": s.catalog.Snapshot().Len(),
	})
}

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := s.catalog.Create(req.Title, req.Description)
	if err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	e, err := s.catalog.Get(chi.URLParam(r, "filename"))
	if err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := s.catalog.Update(chi.URLParam(r, "filename"), req.Description)
	if err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(chi.URLParam(r, "filename")); err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) catalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrEntryExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("catalog operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Settings ---

type settingResponse struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

func (s *Server) settingKind(w http.ResponseWriter, r *http.Request) (string, record.Kind, bool) {
	key := chi.URLParam(r, "key")
	kind, ok := s.settings[key]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown setting %q", key))
	}
	return key, kind, ok
}

func (s *Server) handleSettingGet(w http.ResponseWriter, r *http.Request) {
	key, kind, ok := s.settingKind(w, r)
	if !ok {
		return
	}
	on, err := s.engine.Enabled(r.Context(), kind)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: on})
}

// handleSettingSet accepts {"value": true|false|"true"|"false"}.
func (s *Server) handleSettingSet(w http.ResponseWriter, r *http.Request) {
	key, kind, ok := s.settingKind(w, r)
	if !ok {
		return
	}
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	on, err := parseSwitch(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.SetEnabled(r.Context(), kind, on); err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: on})
}

func parseSwitch(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
			return b, nil
		}
	}
	return false, fmt.Errorf("value must be true or false")
}

// --- Status ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.storeError(w, err)
		return
	}
	enabled := map[string]bool{}
	for key, kind := range s.settings {
		on, err := s.engine.Enabled(ctx, kind)
		if err != nil {
			s.storeError(w, err)
			return
		}
		enabled[key] = on
	}
	provider := ""
	if p := s.engine.Provider(); p != nil {
		provider = p.Name()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"provider": provider,
		"jobs":     s.catalog.Snapshot().Len(),
		"settings": enabled,
		"turns":    stats.TurnCount,
		"records":  stats.RecordCount,
	})
}
