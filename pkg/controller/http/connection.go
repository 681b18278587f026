package http

import (
	"net/http"

	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/usecase"
)

type createConnectionRequest struct {
	Platform        string `json:"platform"`
	Name            string `json:"name"`
	AccessToken     string `json:"access_token" masq:"secret"`
	OrganizationURL string `json:"organization_url"`
	WorkspaceID     string `json:"workspace_id"`
	SiteURL         string `json:"site_url"`
	SpaceKey        string `json:"space_key"`
	AccountEmail    string `json:"account_email"`
	SyncEnabled     *bool  `json:"sync_enabled"`
}

type updateConnectionRequest struct {
	Name            *string `json:"name"`
	AccessToken     *string `json:"access_token" masq:"secret"`
	OrganizationURL *string `json:"organization_url"`
	WorkspaceID     *string `json:"workspace_id"`
	SiteURL         *string `json:"site_url"`
	SpaceKey        *string `json:"space_key"`
	AccountEmail    *string `json:"account_email"`
	SyncEnabled     *bool   `json:"sync_enabled"`
	IsActive        *bool   `json:"is_active"`
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.uc.Connection.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, mapSlice(conns, toConnectionResponse))
}

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	platform, err := types.ParsePlatform(req.Platform)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	syncEnabled := true
	if req.SyncEnabled != nil {
		syncEnabled = *req.SyncEnabled
	}

	conn, err := s.uc.Connection.Create(ctx, usecase.CreateConnectionInput{
		Platform:        platform,
		Name:            req.Name,
		AccessToken:     req.AccessToken,
		OrganizationURL: req.OrganizationURL,
		WorkspaceID:     req.WorkspaceID,
		SiteURL:         req.SiteURL,
		SpaceKey:        req.SpaceKey,
		AccountEmail:    req.AccountEmail,
		SyncEnabled:     syncEnabled,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, toConnectionResponse(conn))
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.uc.Connection.Get(r.Context(), connectionID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toConnectionResponse(conn))
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	conn, err := s.uc.Connection.Update(ctx, usecase.UpdateConnectionInput{
		ID:              connectionID(r),
		Name:            req.Name,
		AccessToken:     req.AccessToken,
		OrganizationURL: req.OrganizationURL,
		WorkspaceID:     req.WorkspaceID,
		SiteURL:         req.SiteURL,
		SpaceKey:        req.SpaceKey,
		AccountEmail:    req.AccountEmail,
		SyncEnabled:     req.SyncEnabled,
		IsActive:        req.IsActive,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toConnectionResponse(conn))
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Connection.Delete(r.Context(), connectionID(r)); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	ok, err := s.uc.Connection.Test(r.Context(), connectionID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]bool{"ok": ok})
}

func (s *Server) listContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := s.uc.Connection.ListContainers(r.Context(), connectionID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if containers == nil {
		containers = []usecase.Container{}
	}
	writeJSON(r.Context(), w, http.StatusOK, containers)
}

func (s *Server) listWorkItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.uc.Connection.ListWorkItems(r.Context(), connectionID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, mapSlice(items, toWorkItemResponse))
}

func (s *Server) listCommits(w http.ResponseWriter, r *http.Request) {
	commits, err := s.uc.Connection.ListCommits(r.Context(), connectionID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, mapSlice(commits, toCommitResponse))
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.uc.Connection.ListPages(r.Context(), connectionID(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	withContent := r.URL.Query().Get("content") == "true"
	writeJSON(r.Context(), w, http.StatusOK, mapSlice(pages, func(p *model.ConfluencePage) pageResponse {
		return toPageResponse(p, withContent)
	}))
}
