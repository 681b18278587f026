package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type pageDocument struct {
	ConnectionID   string         `firestore:"connection_id"`
	ExternalID     string         `firestore:"external_id"`
	Type           string         `firestore:"type"`
	Status         string         `firestore:"status"`
	Title          string         `firestore:"title"`
	Content        string         `firestore:"content"`
	SpaceID        string         `firestore:"space_id"`
	SpaceKey       string         `firestore:"space_key"`
	SpaceName      string         `firestore:"space_name"`
	ParentID       *string        `firestore:"parent_id"`
	Position       *int           `firestore:"position"`
	AuthorID       string         `firestore:"author_id"`
	OwnerID        string         `firestore:"owner_id"`
	VersionNumber  int            `firestore:"version_number"`
	VersionMessage string         `firestore:"version_message"`
	CreatedDate    *time.Time     `firestore:"created_date"`
	UpdatedDate    *time.Time     `firestore:"updated_date"`
	URL            string         `firestore:"url"`
	Metadata       map[string]any `firestore:"metadata"`
	Stale          bool           `firestore:"stale"`
	LastSyncedAt   time.Time      `firestore:"last_synced_at"`
}

type pageRepository struct {
	client *firestore.Client
	cols   *collections
}

func pageToDocument(p *model.ConfluencePage) *pageDocument {
	return &pageDocument{
		ConnectionID:   string(p.ConnectionID),
		ExternalID:     p.ExternalID,
		Type:           p.Type,
		Status:         p.Status,
		Title:          p.Title,
		Content:        p.Content,
		SpaceID:        p.SpaceID,
		SpaceKey:       p.SpaceKey,
		SpaceName:      p.SpaceName,
		ParentID:       p.ParentID,
		Position:       p.Position,
		AuthorID:       p.AuthorID,
		OwnerID:        p.OwnerID,
		VersionNumber:  p.VersionNumber,
		VersionMessage: p.VersionMessage,
		CreatedDate:    p.CreatedDate,
		UpdatedDate:    p.UpdatedDate,
		URL:            p.URL,
		Metadata:       p.Metadata,
		Stale:          p.Stale,
		LastSyncedAt:   p.LastSyncedAt,
	}
}

func pageToModel(doc *pageDocument) *model.ConfluencePage {
	return &model.ConfluencePage{
		ConnectionID:   model.ConnectionID(doc.ConnectionID),
		ExternalID:     doc.ExternalID,
		Type:           doc.Type,
		Status:         doc.Status,
		Title:          doc.Title,
		Content:        doc.Content,
		SpaceID:        doc.SpaceID,
		SpaceKey:       doc.SpaceKey,
		SpaceName:      doc.SpaceName,
		ParentID:       doc.ParentID,
		Position:       doc.Position,
		AuthorID:       doc.AuthorID,
		OwnerID:        doc.OwnerID,
		VersionNumber:  doc.VersionNumber,
		VersionMessage: doc.VersionMessage,
		CreatedDate:    doc.CreatedDate,
		UpdatedDate:    doc.UpdatedDate,
		URL:            doc.URL,
		Metadata:       doc.Metadata,
		Stale:          doc.Stale,
		LastSyncedAt:   doc.LastSyncedAt,
	}
}

func (r *pageRepository) collection(connID model.ConnectionID) *firestore.CollectionRef {
	return r.cols.sub(connID, pagesCollection)
}

func (r *pageRepository) Upsert(ctx context.Context, p *model.ConfluencePage) error {
	if _, err := r.collection(p.ConnectionID).Doc(docID(p.ExternalID)).Set(ctx, pageToDocument(p)); err != nil {
		return goerr.Wrap(err, "failed to upsert page",
			goerr.V(model.ConnectionIDKey, p.ConnectionID), goerr.V(model.ExternalIDKey, p.ExternalID))
	}
	return nil
}

func (r *pageRepository) Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.ConfluencePage, error) {
	snap, err := r.collection(connID).Doc(docID(externalID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "page not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V(model.ExternalIDKey, externalID))
		}
		return nil, goerr.Wrap(err, "failed to get page", goerr.V(model.ExternalIDKey, externalID))
	}

	var doc pageDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal page", goerr.V(model.ExternalIDKey, externalID))
	}
	return pageToModel(&doc), nil
}

func (r *pageRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.ConfluencePage, error) {
	iter := r.collection(connID).OrderBy("external_id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var pages []*model.ConfluencePage
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate pages", goerr.V(model.ConnectionIDKey, connID))
		}

		var doc pageDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal page", goerr.V("docID", snap.Ref.ID))
		}
		pages = append(pages, pageToModel(&doc))
	}
	return pages, nil
}

func (r *pageRepository) MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error) {
	return markStale(ctx, r.client, r.collection(connID), seen)
}

func (r *pageRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	return deleteAll(ctx, r.client, r.collection(connID))
}
