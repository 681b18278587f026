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

type workItemDocument struct {
	ConnectionID   string         `firestore:"connection_id"`
	ExternalID     string         `firestore:"external_id"`
	ExternalURL    string         `firestore:"external_url"`
	Platform       string         `firestore:"platform"`
	Title          string         `firestore:"title"`
	Description    string         `firestore:"description"`
	WorkItemType   string         `firestore:"work_item_type"`
	Status         string         `firestore:"status"`
	Priority       *string        `firestore:"priority"`
	AssignedToID   *string        `firestore:"assigned_to_id"`
	AssignedTo     string         `firestore:"assigned_to"`
	AssignedToName string         `firestore:"assigned_to_name"`
	CreatedDate    *time.Time     `firestore:"created_date"`
	ModifiedDate   *time.Time     `firestore:"modified_date"`
	CompletedDate  *time.Time     `firestore:"completed_date"`
	DueDate        *time.Time     `firestore:"due_date"`
	Project        string         `firestore:"project"`
	Section        string         `firestore:"section"`
	AreaPath       string         `firestore:"area_path"`
	IterationPath  string         `firestore:"iteration_path"`
	StoryPoints    *float64       `firestore:"story_points"`
	Tags           []string       `firestore:"tags"`
	Metadata       map[string]any `firestore:"metadata"`
	Stale          bool           `firestore:"stale"`
	LastSyncedAt   time.Time      `firestore:"last_synced_at"`
}

type workItemRepository struct {
	client *firestore.Client
	cols   *collections
}

func employeeIDToString(id *model.EmployeeID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func stringToEmployeeID(s *string) *model.EmployeeID {
	if s == nil {
		return nil
	}
	id := model.EmployeeID(*s)
	return &id
}

func workItemToDocument(item *model.WorkItem) *workItemDocument {
	return &workItemDocument{
		ConnectionID:   string(item.ConnectionID),
		ExternalID:     item.ExternalID,
		ExternalURL:    item.ExternalURL,
		Platform:       string(item.Platform),
		Title:          item.Title,
		Description:    item.Description,
		WorkItemType:   item.WorkItemType,
		Status:         item.Status,
		Priority:       item.Priority,
		AssignedToID:   employeeIDToString(item.AssignedToID),
		AssignedTo:     item.AssignedTo,
		AssignedToName: item.AssignedToName,
		CreatedDate:    item.CreatedDate,
		ModifiedDate:   item.ModifiedDate,
		CompletedDate:  item.CompletedDate,
		DueDate:        item.DueDate,
		Project:        item.Project,
		Section:        item.Section,
		AreaPath:       item.AreaPath,
		IterationPath:  item.IterationPath,
		StoryPoints:    item.StoryPoints,
		Tags:           item.Tags,
		Metadata:       item.Metadata,
		Stale:          item.Stale,
		LastSyncedAt:   item.LastSyncedAt,
	}
}

func workItemToModel(doc *workItemDocument) *model.WorkItem {
	return &model.WorkItem{
		ConnectionID:   model.ConnectionID(doc.ConnectionID),
		ExternalID:     doc.ExternalID,
		ExternalURL:    doc.ExternalURL,
		Platform:       types.Platform(doc.Platform),
		Title:          doc.Title,
		Description:    doc.Description,
		WorkItemType:   doc.WorkItemType,
		Status:         doc.Status,
		Priority:       doc.Priority,
		AssignedToID:   stringToEmployeeID(doc.AssignedToID),
		AssignedTo:     doc.AssignedTo,
		AssignedToName: doc.AssignedToName,
		CreatedDate:    doc.CreatedDate,
		ModifiedDate:   doc.ModifiedDate,
		CompletedDate:  doc.CompletedDate,
		DueDate:        doc.DueDate,
		Project:        doc.Project,
		Section:        doc.Section,
		AreaPath:       doc.AreaPath,
		IterationPath:  doc.IterationPath,
		StoryPoints:    doc.StoryPoints,
		Tags:           doc.Tags,
		Metadata:       doc.Metadata,
		Stale:          doc.Stale,
		LastSyncedAt:   doc.LastSyncedAt,
	}
}

func (r *workItemRepository) collection(connID model.ConnectionID) *firestore.CollectionRef {
	return r.cols.sub(connID, workItemsCollection)
}

func (r *workItemRepository) Upsert(ctx context.Context, item *model.WorkItem) error {
	doc := workItemToDocument(item)
	if _, err := r.collection(item.ConnectionID).Doc(docID(item.ExternalID)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to upsert work item",
			goerr.V(model.ConnectionIDKey, item.ConnectionID), goerr.V(model.ExternalIDKey, item.ExternalID))
	}
	return nil
}

func (r *workItemRepository) Get(ctx context.Context, connID model.ConnectionID, externalID string) (*model.WorkItem, error) {
	snap, err := r.collection(connID).Doc(docID(externalID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "work item not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V(model.ExternalIDKey, externalID))
		}
		return nil, goerr.Wrap(err, "failed to get work item", goerr.V(model.ExternalIDKey, externalID))
	}

	var doc workItemDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal work item", goerr.V(model.ExternalIDKey, externalID))
	}
	return workItemToModel(&doc), nil
}

func (r *workItemRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.WorkItem, error) {
	iter := r.collection(connID).OrderBy("external_id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var items []*model.WorkItem
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate work items", goerr.V(model.ConnectionIDKey, connID))
		}

		var doc workItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal work item", goerr.V("docID", snap.Ref.ID))
		}
		items = append(items, workItemToModel(&doc))
	}
	return items, nil
}

func (r *workItemRepository) MarkStale(ctx context.Context, connID model.ConnectionID, seen []string) (int, error) {
	return markStale(ctx, r.client, r.collection(connID), seen)
}

func (r *workItemRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	return deleteAll(ctx, r.client, r.collection(connID))
}
