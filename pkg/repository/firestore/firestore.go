package firestore

import (
	"context"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"google.golang.org/api/iterator"
)

// Sentinel errors, shared with the other backends
var (
	ErrNotFound      = interfaces.ErrNotFound
	ErrAlreadyExists = interfaces.ErrAlreadyExists
)

// Collection layout: connections live at the top level and every object synced for a
// connection lives in a subcollection of the connection document.
const (
	connectionsCollection  = "integration_connections"
	userMappingsCollection = "user_mappings"
	workItemsCollection    = "work_items"
	commitsCollection      = "commits"
	pagesCollection        = "pages"
	syncRunsCollection     = "sync_runs"
)

type Firestore struct {
	client      *firestore.Client
	base        *collections
	connection  *connectionRepository
	userMapping *userMappingRepository
	workItem    *workItemRepository
	commit      *commitRepository
	page        *pageRepository
	syncRun     *syncRunRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prefixes the top level collection name, used to isolate test runs
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.base.prefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	base := &collections{client: client}
	f := &Firestore{
		client:      client,
		base:        base,
		connection:  &connectionRepository{client: client, cols: base},
		userMapping: &userMappingRepository{client: client, cols: base},
		workItem:    &workItemRepository{client: client, cols: base},
		commit:      &commitRepository{client: client, cols: base},
		page:        &pageRepository{client: client, cols: base},
		syncRun:     &syncRunRepository{client: client, cols: base},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Connection() interfaces.ConnectionRepository {
	return f.connection
}

func (f *Firestore) UserMapping() interfaces.UserMappingRepository {
	return f.userMapping
}

func (f *Firestore) WorkItem() interfaces.WorkItemRepository {
	return f.workItem
}

func (f *Firestore) Commit() interfaces.CommitRepository {
	return f.commit
}

func (f *Firestore) Page() interfaces.PageRepository {
	return f.page
}

func (f *Firestore) SyncRun() interfaces.SyncRunRepository {
	return f.syncRun
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

type collections struct {
	client *firestore.Client
	prefix string
}

func (c *collections) connections() *firestore.CollectionRef {
	if c.prefix != "" {
		return c.client.Collection(c.prefix + "_" + connectionsCollection)
	}
	return c.client.Collection(connectionsCollection)
}

func (c *collections) sub(connID model.ConnectionID, name string) *firestore.CollectionRef {
	return c.connections().Doc(string(connID)).Collection(name)
}

// docID escapes characters that are not allowed in Firestore document IDs
func docID(key string) string {
	return url.PathEscape(key)
}

// deleteAll removes every document of a collection with a BulkWriter
func deleteAll(ctx context.Context, client *firestore.Client, col *firestore.CollectionRef) error {
	iter := col.Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate documents for deletion", goerr.V("collection", col.ID))
		}
		refs = append(refs, doc.Ref)
	}

	if len(refs) == 0 {
		return nil
	}

	bulkWriter := client.BulkWriter(ctx)
	defer bulkWriter.End()

	jobs := make([]bulkJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bulkWriter.Delete(ref)
		if err != nil {
			return goerr.Wrap(err, "failed to add Delete operation to bulk writer", goerr.V("collection", col.ID))
		}
		jobs = append(jobs, job)
	}

	bulkWriter.Flush()
	if _, err := waitBulkJobs(jobs); err != nil {
		return goerr.Wrap(err, "failed to delete documents", goerr.V("collection", col.ID))
	}
	return nil
}

// markStale flags non-stale documents whose external_id is not in seen
func markStale(ctx context.Context, client *firestore.Client, col *firestore.CollectionRef, seen []string) (int, error) {
	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	iter := col.Where("stale", "==", false).OrderBy("external_id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to iterate documents for stale marking", goerr.V("collection", col.ID))
		}
		externalID, err := doc.DataAt("external_id")
		if err != nil {
			return 0, goerr.Wrap(err, "document has no external_id", goerr.V("doc_id", doc.Ref.ID))
		}
		if id, ok := externalID.(string); ok {
			if _, seen := seenSet[id]; seen {
				continue
			}
		}
		refs = append(refs, doc.Ref)
	}

	if len(refs) == 0 {
		return 0, nil
	}

	bulkWriter := client.BulkWriter(ctx)
	defer bulkWriter.End()

	jobs := make([]bulkJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bulkWriter.Update(ref, []firestore.Update{{Path: "stale", Value: true}})
		if err != nil {
			return 0, goerr.Wrap(err, "failed to add Update operation to bulk writer", goerr.V("collection", col.ID))
		}
		jobs = append(jobs, job)
	}

	bulkWriter.Flush()
	n, err := waitBulkJobs(jobs)
	if err != nil {
		return n, goerr.Wrap(err, "failed to mark documents stale", goerr.V("collection", col.ID))
	}
	return n, nil
}

// bulkJob is the result handle of one BulkWriter operation
type bulkJob interface {
	Results() (*firestore.WriteResult, error)
}

// waitBulkJobs waits for every job and returns how many succeeded. The first failure is returned
// along with the number of failed jobs.
func waitBulkJobs(jobs []bulkJob) (int, error) {
	var (
		succeeded int
		failed    int
		firstErr  error
	)
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded++
	}
	if firstErr != nil {
		return succeeded, goerr.Wrap(firstErr, "bulk write failed", goerr.V("failed", failed), goerr.V("total", len(jobs)))
	}
	return succeeded, nil
}
