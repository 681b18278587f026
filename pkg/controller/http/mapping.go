package http

import (
	"net/http"

	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/usecase"
)

type createMappingRequest struct {
	ExternalID       string  `json:"external_id"`
	ExternalUsername string  `json:"external_username"`
	ExternalEmail    string  `json:"external_email"`
	EmployeeID       *string `json:"employee_id"`
}

type assignMappingRequest struct {
	EmployeeID *string `json:"employee_id"`
}

func employeeIDOf(s *string) *model.EmployeeID {
	if s == nil {
		return nil
	}
	id := model.EmployeeID(*s)
	return &id
}

func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := connectionID(r)

	if _, err := s.uc.Connection.Get(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	mappings, err := s.uc.Mapping.List(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, mapSlice(mappings, toMappingResponse))
}

func (s *Server) createMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createMappingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	mapping, err := s.uc.Mapping.Create(ctx, usecase.CreateMappingInput{
		ConnectionID:     connectionID(r),
		ExternalID:       req.ExternalID,
		ExternalUsername: req.ExternalUsername,
		ExternalEmail:    req.ExternalEmail,
		EmployeeID:       employeeIDOf(req.EmployeeID),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, toMappingResponse(mapping))
}

func (s *Server) discoverMappings(w http.ResponseWriter, r *http.Request) {
	created, err := s.uc.Mapping.Discover(r.Context(), connectionID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, mapSlice(created, toMappingResponse))
}

func (s *Server) assignMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req assignMappingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	mapping, err := s.uc.Mapping.Assign(ctx, connectionID(r), mappingID(r), employeeIDOf(req.EmployeeID))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toMappingResponse(mapping))
}

func (s *Server) deleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Mapping.Delete(r.Context(), connectionID(r), mappingID(r)); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
