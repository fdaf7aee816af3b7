package cache

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig identifies the collection a FirestoreSource reads.
type FirestoreConfig struct {
	ProjectID  string
	Collection string
}

// FirestoreSource is a source of truth backed by a Firestore collection,
// meant to sit at the bottom of a tier chain. Keys map to document ids.
type FirestoreSource[K comparable, V any] struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreSource creates a FirestoreSource with its own client. Extra
// client options (credentials, endpoint overrides for emulators) pass
// through to the Firestore SDK.
func NewFirestoreSource[K comparable, V any](
	ctx context.Context,
	cfg *FirestoreConfig,
	logger zerolog.Logger,
	opts ...option.ClientOption,
) (*FirestoreSource[K, V], error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config cannot be nil")
	}
	if cfg.ProjectID == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("firestore project id and collection are required")
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreSource[K, V]{
		client:     client,
		collection: cfg.Collection,
		logger:     logger.With().Str("component", "FirestoreSource").Logger(),
	}, nil
}

// Fetch reads the document whose id is the key's string form.
func (s *FirestoreSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	docID := fmt.Sprintf("%v", key)
	snap, err := s.client.Collection(s.collection).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("document %s: %w", docID, ErrNotFound)
		}
		return zero, fmt.Errorf("firestore get failed for document %s: %w", docID, err)
	}
	var value V
	if err := snap.DataTo(&value); err != nil {
		return zero, fmt.Errorf("failed to decode document %s: %w", docID, err)
	}
	return value, nil
}

// Close closes the Firestore client.
func (s *FirestoreSource[K, V]) Close() error {
	s.logger.Debug().Msg("Closing Firestore source.")
	return s.client.Close()
}
