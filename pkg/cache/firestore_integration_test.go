//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/digital-persona/go-clientcore/pkg/cache"
	"github.com/digital-persona/go-clientcore/pkg/persona"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires the Firestore emulator, e.g. FIRESTORE_EMULATOR_HOST=localhost:8080.
func TestFirestoreSource_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	const projectID = "clientcore-test"
	const collection = "personas"

	// Seed a document through a plain client.
	seed, err := firestore.NewClient(ctx, projectID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = seed.Close() })
	_, err = seed.Collection(collection).Doc("p1").Set(ctx, persona.Persona{ID: "p1", Name: "Ada"})
	require.NoError(t, err)

	cfg := &cache.FirestoreConfig{ProjectID: projectID, Collection: collection}
	source, err := cache.NewFirestoreSource[string, persona.Persona](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = source.Close() })

	got, err := source.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	_, err = source.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
