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

type commitDocument struct {
	ConnectionID    string     `firestore:"connection_id"`
	EmployeeID      string     `firestore:"employee_id"`
	CommitHash      string     `firestore:"commit_hash"`
	Message         string     `firestore:"message"`
	URL             string     `firestore:"url"`
	Repository      string     `firestore:"repository"`
	FilesChanged    int        `firestore:"files_changed"`
	LinesAdded      int        `firestore:"lines_added"`
	LinesDeleted    int        `firestore:"lines_deleted"`
	AuthorName      string     `firestore:"author_name"`
	AuthorEmail     string     `firestore:"author_email"`
	AuthorDate      *time.Time `firestore:"author_date"`
	CommitterName   string     `firestore:"committer_name"`
	CommitterEmail  string     `firestore:"committer_email"`
	CommitDate      *time.Time `firestore:"commit_date"`
	LinkedWorkItems []string   `firestore:"linked_work_items"`
	LastSyncedAt    time.Time  `firestore:"last_synced_at"`
}

type commitRepository struct {
	client *firestore.Client
	cols   *collections
}

func commitToDocument(c *model.DeveloperCommit) *commitDocument {
	return &commitDocument{
		ConnectionID:    string(c.ConnectionID),
		EmployeeID:      string(c.EmployeeID),
		CommitHash:      c.CommitHash,
		Message:         c.Message,
		URL:             c.URL,
		Repository:      c.Repository,
		FilesChanged:    c.FilesChanged,
		LinesAdded:      c.LinesAdded,
		LinesDeleted:    c.LinesDeleted,
		AuthorName:      c.AuthorName,
		AuthorEmail:     c.AuthorEmail,
		AuthorDate:      c.AuthorDate,
		CommitterName:   c.CommitterName,
		CommitterEmail:  c.CommitterEmail,
		CommitDate:      c.CommitDate,
		LinkedWorkItems: c.LinkedWorkItems,
		LastSyncedAt:    c.LastSyncedAt,
	}
}

func commitToModel(doc *commitDocument) *model.DeveloperCommit {
	linked := doc.LinkedWorkItems
	if linked == nil {
		linked = []string{}
	}
	return &model.DeveloperCommit{
		ConnectionID:    model.ConnectionID(doc.ConnectionID),
		EmployeeID:      model.EmployeeID(doc.EmployeeID),
		CommitHash:      doc.CommitHash,
		Message:         doc.Message,
		URL:             doc.URL,
		Repository:      doc.Repository,
		FilesChanged:    doc.FilesChanged,
		LinesAdded:      doc.LinesAdded,
		LinesDeleted:    doc.LinesDeleted,
		AuthorName:      doc.AuthorName,
		AuthorEmail:     doc.AuthorEmail,
		AuthorDate:      doc.AuthorDate,
		CommitterName:   doc.CommitterName,
		CommitterEmail:  doc.CommitterEmail,
		CommitDate:      doc.CommitDate,
		LinkedWorkItems: linked,
		LastSyncedAt:    doc.LastSyncedAt,
	}
}

func (r *commitRepository) collection(connID model.ConnectionID) *firestore.CollectionRef {
	return r.cols.sub(connID, commitsCollection)
}

func (r *commitRepository) Upsert(ctx context.Context, c *model.DeveloperCommit) error {
	if _, err := r.collection(c.ConnectionID).Doc(docID(c.CommitHash)).Set(ctx, commitToDocument(c)); err != nil {
		return goerr.Wrap(err, "failed to upsert commit",
			goerr.V(model.ConnectionIDKey, c.ConnectionID), goerr.V("commit_hash", c.CommitHash))
	}
	return nil
}

func (r *commitRepository) Get(ctx context.Context, connID model.ConnectionID, hash string) (*model.DeveloperCommit, error) {
	snap, err := r.collection(connID).Doc(docID(hash)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "commit not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V("commit_hash", hash))
		}
		return nil, goerr.Wrap(err, "failed to get commit", goerr.V("commit_hash", hash))
	}

	var doc commitDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal commit", goerr.V("commit_hash", hash))
	}
	return commitToModel(&doc), nil
}

func (r *commitRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.DeveloperCommit, error) {
	iter := r.collection(connID).OrderBy("commit_hash", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var commits []*model.DeveloperCommit
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate commits", goerr.V(model.ConnectionIDKey, connID))
		}

		var doc commitDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal commit", goerr.V("docID", snap.Ref.ID))
		}
		commits = append(commits, commitToModel(&doc))
	}
	return commits, nil
}

func (r *commitRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	return deleteAll(ctx, r.client, r.collection(connID))
}
