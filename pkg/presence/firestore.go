package presence

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore stores presence documents in a Firestore collection. Suited to
// smaller deployments where running Redis would be overkill. The client's
// lifecycle is managed by the caller.
type Firestore[K comparable, V any] struct {
	client     *firestore.Client
	collection string
}

// NewFirestore creates a Firestore-backed presence cache.
func NewFirestore[K comparable, V any](client *firestore.Client, collection string) (*Firestore[K, V], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if collection == "" {
		return nil, errors.New("collection name cannot be empty")
	}
	return &Firestore[K, V]{client: client, collection: collection}, nil
}

// Set creates or overwrites the presence document for a key.
func (f *Firestore[K, V]) Set(ctx context.Context, key K, value V) error {
	docID := fmt.Sprintf("%v", key)
	if _, err := f.client.Collection(f.collection).Doc(docID).Set(ctx, value); err != nil {
		return fmt.Errorf("firestore set failed for key %s: %w", docID, err)
	}
	return nil
}

// Fetch retrieves the presence document for a key.
func (f *Firestore[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	docID := fmt.Sprintf("%v", key)
	snap, err := f.client.Collection(f.collection).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("presence key '%v': %w", key, ErrNotFound)
		}
		return zero, fmt.Errorf("firestore get failed for key %s: %w", docID, err)
	}
	var value V
	if err := snap.DataTo(&value); err != nil {
		return zero, fmt.Errorf("failed to decode presence document for key %s: %w", docID, err)
	}
	return value, nil
}

// Delete removes the presence document. An absent document is not an error.
func (f *Firestore[K, V]) Delete(ctx context.Context, key K) error {
	docID := fmt.Sprintf("%v", key)
	if _, err := f.client.Collection(f.collection).Doc(docID).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("firestore delete failed for key %s: %w", docID, err)
	}
	return nil
}

// Close is a no-op; the Firestore client belongs to the caller.
func (f *Firestore[K, V]) Close() error {
	return nil
}
