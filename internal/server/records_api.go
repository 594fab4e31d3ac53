package server

import (
	"encoding/json"
	"net/http"

	"github.com/sovrium/sovrium/internal/routing"
	"github.com/sovrium/sovrium/modules/permission/domain/types"
	"github.com/sovrium/sovrium/pkg/httperr"
)

func (s *Server) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	table := routing.PathParams(r.Context())["table"]
	payload, err := decodePayload(r)
	if err != nil {
		writeRequestError(w, r, err)
		return
	}

	record, decision, err := s.records.Create(r.Context(), currentPrincipal(r.Context()), table, payload)
	if err != nil {
		routing.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !decision.IsAllowed() {
		writeFieldDecision(w, r, decision)
		return
	}
	routing.WriteJSON(w, http.StatusCreated, record)
}

func (s *Server) handleRecordList(w http.ResponseWriter, r *http.Request) {
	table := routing.PathParams(r.Context())["table"]

	records, decision, err := s.records.List(r.Context(), currentPrincipal(r.Context()), table)
	if err != nil {
		routing.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !decision.IsAllowed() {
		writeFieldDecision(w, r, decision)
		return
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleRecordGet(w http.ResponseWriter, r *http.Request) {
	params := routing.PathParams(r.Context())

	record, decision, err := s.records.Get(r.Context(), currentPrincipal(r.Context()), params["table"], params["id"])
	if err != nil {
		routing.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !decision.IsAllowed() {
		writeFieldDecision(w, r, decision)
		return
	}
	routing.WriteJSON(w, http.StatusOK, record)
}

func (s *Server) handleRecordUpdate(w http.ResponseWriter, r *http.Request) {
	params := routing.PathParams(r.Context())
	payload, err := decodePayload(r)
	if err != nil {
		writeRequestError(w, r, err)
		return
	}

	record, decision, err := s.records.Update(r.Context(), currentPrincipal(r.Context()), params["table"], params["id"], payload)
	if err != nil {
		routing.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !decision.IsAllowed() {
		writeFieldDecision(w, r, decision)
		return
	}
	routing.WriteJSON(w, http.StatusOK, record)
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	params := routing.PathParams(r.Context())

	decision, err := s.records.Delete(r.Context(), currentPrincipal(r.Context()), params["table"], params["id"])
	if err != nil {
		routing.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if !decision.IsAllowed() {
		writeFieldDecision(w, r, decision)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodePayload(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, httperr.NewBadRequest("bad json")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	if httperr.IsBadRequest(err) {
		routing.WriteError(w, r, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	routing.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
}

// writeFieldDecision renders a deny decision with its 1:1 status mapping:
// unauthenticated 401, forbidden 403, not found 404. Cross-organization
// denials arrive here already shaped as not_found, so nothing about hidden
// records leaks. Field-write denials name the offending field.
func writeFieldDecision(w http.ResponseWriter, r *http.Request, d types.Decision) {
	msg := d.Reason
	if d.Field != "" {
		msg = d.Reason + ": field " + d.Field
	}
	routing.WriteError(w, r, d.StatusCode(), d.Reason, msg)
}
