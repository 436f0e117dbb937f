package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// Ensure FirestoreStore implements the interface.
var _ DocumentStore = (*FirestoreStore)(nil)

// NewFirestoreClient creates a new Firestore client.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewFirestoreClient: projectID cannot be empty")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return client, nil
}

// FirestoreStore keeps one Firestore document per Document, keyed by its id.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore returns a store writing to collection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = "documents"
	}
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) Create(ctx context.Context, doc models.Document) error {
	if _, err := s.client.Collection(s.collection).Doc(doc.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
	}
	return nil
}

// Update overwrites the whole document; Set is atomic per document.
func (s *FirestoreStore) Update(ctx context.Context, doc models.Document) error {
	if _, err := s.client.Collection(s.collection).Doc(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to update document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (models.Document, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.Document{}, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return models.Document{}, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = snap.Ref.ID
	return doc, nil
}

func (s *FirestoreStore) FindAll(ctx context.Context, pred Predicate) ([]models.Document, error) {
	iter := s.client.Collection(s.collection).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	out := []models.Document{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		var doc models.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
		}
		doc.ID = snap.Ref.ID
		if pred == nil || pred(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// FindByHash returns the id of a document with the given file hash, if any.
// It runs server-side instead of scanning the collection.
func (s *FirestoreStore) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := s.client.Collection(s.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, true, nil
	}
	return "", false, nil
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
