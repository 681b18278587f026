package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type connectionDocument struct {
	ID              string     `firestore:"id"`
	Platform        string     `firestore:"platform"`
	Name            string     `firestore:"name"`
	AccessToken     string     `firestore:"access_token"`
	OrganizationURL string     `firestore:"organization_url"`
	WorkspaceID     string     `firestore:"workspace_id"`
	SiteURL         string     `firestore:"site_url"`
	SpaceKey        string     `firestore:"space_key"`
	AccountEmail    string     `firestore:"account_email"`
	SyncEnabled     bool       `firestore:"sync_enabled"`
	IsActive        bool       `firestore:"is_active"`
	LastSyncAt      *time.Time `firestore:"last_sync_at"`
	LastSyncStatus  string     `firestore:"last_sync_status"`
	LastSyncError   *string    `firestore:"last_sync_error"`
	CreatedAt       time.Time  `firestore:"created_at"`
	UpdatedAt       time.Time  `firestore:"updated_at"`
}

type connectionRepository struct {
	client *firestore.Client
	cols   *collections
}

func connectionToDocument(conn *model.IntegrationConnection) *connectionDocument {
	return &connectionDocument{
		ID:              string(conn.ID),
		Platform:        string(conn.Platform),
		Name:            conn.Name,
		AccessToken:     conn.AccessToken,
		OrganizationURL: conn.OrganizationURL,
		WorkspaceID:     conn.WorkspaceID,
		SiteURL:         conn.SiteURL,
		SpaceKey:        conn.SpaceKey,
		AccountEmail:    conn.AccountEmail,
		SyncEnabled:     conn.SyncEnabled,
		IsActive:        conn.IsActive,
		LastSyncAt:      conn.LastSyncAt,
		LastSyncStatus:  string(conn.LastSyncStatus),
		LastSyncError:   conn.LastSyncError,
		CreatedAt:       conn.CreatedAt,
		UpdatedAt:       conn.UpdatedAt,
	}
}

func connectionToModel(doc *connectionDocument) *model.IntegrationConnection {
	return &model.IntegrationConnection{
		ID:              model.ConnectionID(doc.ID),
		Platform:        types.Platform(doc.Platform),
		Name:            doc.Name,
		AccessToken:     doc.AccessToken,
		OrganizationURL: doc.OrganizationURL,
		WorkspaceID:     doc.WorkspaceID,
		SiteURL:         doc.SiteURL,
		SpaceKey:        doc.SpaceKey,
		AccountEmail:    doc.AccountEmail,
		SyncEnabled:     doc.SyncEnabled,
		IsActive:        doc.IsActive,
		LastSyncAt:      doc.LastSyncAt,
		LastSyncStatus:  types.SyncStatus(doc.LastSyncStatus),
		LastSyncError:   doc.LastSyncError,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func (r *connectionRepository) get(ctx context.Context, id model.ConnectionID) (*connectionDocument, error) {
	snap, err := r.cols.connections().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V(model.ConnectionIDKey, id))
	}

	var doc connectionDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal connection", goerr.V(model.ConnectionIDKey, id))
	}
	return &doc, nil
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error) {
	now := time.Now().UTC()
	created := *conn
	if created.ID == "" {
		created.ID = model.NewConnectionID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	doc := connectionToDocument(&created)
	if _, err := r.cols.connections().Doc(doc.ID).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(ErrAlreadyExists, "connection already exists", goerr.V(model.ConnectionIDKey, doc.ID))
		}
		return nil, goerr.Wrap(err, "failed to create connection", goerr.V(model.ConnectionIDKey, doc.ID))
	}

	return connectionToModel(doc), nil
}

func (r *connectionRepository) Get(ctx context.Context, id model.ConnectionID) (*model.IntegrationConnection, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return connectionToModel(doc), nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*model.IntegrationConnection, error) {
	iter := r.cols.connections().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var conns []*model.IntegrationConnection
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate connections")
		}

		var doc connectionDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal connection", goerr.V("docID", snap.Ref.ID))
		}
		conns = append(conns, connectionToModel(&doc))
	}

	return conns, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *model.IntegrationConnection) (*model.IntegrationConnection, error) {
	existing, err := r.get(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	updated := connectionToDocument(conn)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	updated.LastSyncAt = existing.LastSyncAt
	updated.LastSyncStatus = existing.LastSyncStatus
	updated.LastSyncError = existing.LastSyncError

	if _, err := r.cols.connections().Doc(updated.ID).Set(ctx, updated); err != nil {
		return nil, goerr.Wrap(err, "failed to update connection", goerr.V(model.ConnectionIDKey, conn.ID))
	}

	return connectionToModel(updated), nil
}

func (r *connectionRepository) UpdateSyncStatus(ctx context.Context, id model.ConnectionID, update model.SyncStatusUpdate) error {
	_, err := r.cols.connections().Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "last_sync_at", Value: update.At},
		{Path: "last_sync_status", Value: string(update.Status)},
		{Path: "last_sync_error", Value: update.Error},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "connection not found", goerr.V(model.ConnectionIDKey, id))
		}
		return goerr.Wrap(err, "failed to update sync status", goerr.V(model.ConnectionIDKey, id))
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id model.ConnectionID) error {
	if _, err := r.get(ctx, id); err != nil {
		return err
	}

	if _, err := r.cols.connections().Doc(string(id)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete connection", goerr.V(model.ConnectionIDKey, id))
	}
	return nil
}
