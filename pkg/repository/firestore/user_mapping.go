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

type userMappingDocument struct {
	ID               string    `firestore:"id"`
	ConnectionID     string    `firestore:"connection_id"`
	ExternalID       string    `firestore:"external_id"`
	ExternalUsername string    `firestore:"external_username"`
	ExternalEmail    string    `firestore:"external_email"`
	EmployeeID       *string   `firestore:"employee_id"`
	CreatedAt        time.Time `firestore:"created_at"`
	UpdatedAt        time.Time `firestore:"updated_at"`
}

type userMappingRepository struct {
	client *firestore.Client
	cols   *collections
}

func userMappingToDocument(m *model.UserMapping) *userMappingDocument {
	doc := &userMappingDocument{
		ID:               string(m.ID),
		ConnectionID:     string(m.ConnectionID),
		ExternalID:       m.ExternalID,
		ExternalUsername: m.ExternalUsername,
		ExternalEmail:    model.NormalizeEmail(m.ExternalEmail),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.EmployeeID != nil {
		id := string(*m.EmployeeID)
		doc.EmployeeID = &id
	}
	return doc
}

func userMappingToModel(doc *userMappingDocument) *model.UserMapping {
	m := &model.UserMapping{
		ID:               model.UserMappingID(doc.ID),
		ConnectionID:     model.ConnectionID(doc.ConnectionID),
		ExternalID:       doc.ExternalID,
		ExternalUsername: doc.ExternalUsername,
		ExternalEmail:    doc.ExternalEmail,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	if doc.EmployeeID != nil {
		id := model.EmployeeID(*doc.EmployeeID)
		m.EmployeeID = &id
	}
	return m
}

func (r *userMappingRepository) collection(connID model.ConnectionID) *firestore.CollectionRef {
	return r.cols.sub(connID, userMappingsCollection)
}

// emailTaken reports whether another mapping of the connection already uses email
func emailTaken(tx *firestore.Transaction, col *firestore.CollectionRef, email, selfID string) (bool, error) {
	docs, err := tx.Documents(col.Where("external_email", "==", email).Limit(2)).GetAll()
	if err != nil {
		return false, goerr.Wrap(err, "failed to query mapping by email", goerr.V(model.EmailKey, email))
	}
	for _, d := range docs {
		if d.Ref.ID != selfID {
			return true, nil
		}
	}
	return false, nil
}

func (r *userMappingRepository) Create(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error) {
	now := time.Now().UTC()
	created := *mapping
	if created.ID == "" {
		created.ID = model.NewUserMappingID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	doc := userMappingToDocument(&created)

	col := r.collection(mapping.ConnectionID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		taken, err := emailTaken(tx, col, doc.ExternalEmail, doc.ID)
		if err != nil {
			return err
		}
		if taken {
			return goerr.Wrap(ErrAlreadyExists, "mapping for email already exists",
				goerr.V(model.ConnectionIDKey, doc.ConnectionID), goerr.V(model.EmailKey, doc.ExternalEmail))
		}
		return tx.Create(col.Doc(doc.ID), doc)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create user mapping", goerr.V(model.ConnectionIDKey, doc.ConnectionID))
	}

	return userMappingToModel(doc), nil
}

func (r *userMappingRepository) Get(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) (*model.UserMapping, error) {
	snap, err := r.collection(connID).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "user mapping not found",
				goerr.V(model.ConnectionIDKey, connID), goerr.V("mapping_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get user mapping", goerr.V("mapping_id", id))
	}

	var doc userMappingDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user mapping", goerr.V("mapping_id", id))
	}
	return userMappingToModel(&doc), nil
}

func (r *userMappingRepository) List(ctx context.Context, connID model.ConnectionID) ([]*model.UserMapping, error) {
	iter := r.collection(connID).OrderBy("external_email", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var mappings []*model.UserMapping
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate user mappings", goerr.V(model.ConnectionIDKey, connID))
		}

		var doc userMappingDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal user mapping", goerr.V("docID", snap.Ref.ID))
		}
		mappings = append(mappings, userMappingToModel(&doc))
	}
	return mappings, nil
}

func (r *userMappingRepository) FindByEmail(ctx context.Context, connID model.ConnectionID, email string) (*model.UserMapping, error) {
	iter := r.collection(connID).Where("external_email", "==", model.NormalizeEmail(email)).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find user mapping", goerr.V(model.EmailKey, email))
	}

	var doc userMappingDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user mapping", goerr.V("docID", snap.Ref.ID))
	}
	return userMappingToModel(&doc), nil
}

func (r *userMappingRepository) Update(ctx context.Context, mapping *model.UserMapping) (*model.UserMapping, error) {
	col := r.collection(mapping.ConnectionID)
	ref := col.Doc(string(mapping.ID))

	var updated *userMappingDocument
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "user mapping not found", goerr.V("mapping_id", mapping.ID))
			}
			return goerr.Wrap(err, "failed to get user mapping", goerr.V("mapping_id", mapping.ID))
		}
		var existing userMappingDocument
		if err := snap.DataTo(&existing); err != nil {
			return goerr.Wrap(err, "failed to unmarshal user mapping", goerr.V("mapping_id", mapping.ID))
		}

		updated = userMappingToDocument(mapping)
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = time.Now().UTC()

		taken, err := emailTaken(tx, col, updated.ExternalEmail, updated.ID)
		if err != nil {
			return err
		}
		if taken {
			return goerr.Wrap(ErrAlreadyExists, "mapping for email already exists", goerr.V(model.EmailKey, updated.ExternalEmail))
		}
		return tx.Set(ref, updated)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update user mapping", goerr.V("mapping_id", mapping.ID))
	}

	return userMappingToModel(updated), nil
}

func (r *userMappingRepository) Delete(ctx context.Context, connID model.ConnectionID, id model.UserMappingID) error {
	ref := r.collection(connID).Doc(string(id))
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "user mapping not found", goerr.V("mapping_id", id))
		}
		return goerr.Wrap(err, "failed to get user mapping", goerr.V("mapping_id", id))
	}

	if _, err := ref.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete user mapping", goerr.V("mapping_id", id))
	}
	return nil
}

func (r *userMappingRepository) DeleteByConnection(ctx context.Context, connID model.ConnectionID) error {
	return deleteAll(ctx, r.client, r.collection(connID))
}
