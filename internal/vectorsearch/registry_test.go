package vectorsearch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ruiji/internal/models"
)

func TestRegistry_RedeclareLastWins(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newTestStore(t), nil)
	first, second := newStub("first"), newStub("second")

	_, err := reg.Declare(ctx, "recipes", first)
	require.NoError(t, err)
	_, err = reg.Declare(ctx, "recipes", second)
	require.NoError(t, err)

	s, err := reg.Get("recipes")
	require.NoError(t, err)
	assert.Same(t, second, s.Provider())

	require.NoError(t, s.Upsert(ctx, &models.Record{ID: "r1"}, true))
	assert.Empty(t, first.adds)
	assert.Len(t, second.adds, 1)
	assert.Equal(t, 1, first.closed)
}

func TestRegistry_SharedProviderNotClosedOnReplace(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newTestStore(t), nil)
	shared, other := newStub("shared"), newStub("other")

	_, _ = reg.Declare(ctx, "recipes", shared)
	_, _ = reg.Declare(ctx, "articles", shared)
	_, _ = reg.Declare(ctx, "recipes", other)
	assert.Equal(t, 0, shared.closed)

	_, _ = reg.Declare(ctx, "articles", shared)
	assert.Equal(t, 0, shared.closed)

	require.NoError(t, reg.Close())
	assert.Equal(t, 1, shared.closed)
	assert.Equal(t, 1, other.closed)
}

func TestRegistry_GetUndeclared(t *testing.T) {
	reg := NewRegistry(newTestStore(t), nil)
	_, err := reg.Get("recipes")
	assert.ErrorIs(t, err, ErrNotSearchable)
}

func TestRegistry_DeclareBindsSchema(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newTestStore(t), nil)
	p := &binderStub{stubProvider: newStub("pgvector")}

	_, err := reg.Declare(ctx, "recipes", p)
	require.NoError(t, err)
	assert.Equal(t, []string{"recipes"}, p.bound)

	failing := &binderStub{stubProvider: newStub("pgvector"), bindErr: errors.New("permission denied")}
	_, err = reg.Declare(ctx, "articles", failing)
	assert.ErrorIs(t, err, failing.bindErr)
	assert.Equal(t, []string{"recipes"}, reg.Types())
}

func TestRegistry_SchemaProviderServesOneType(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newTestStore(t), nil)
	p := &binderStub{stubProvider: newStub("pgvector")}

	_, err := reg.Declare(ctx, "recipes", p)
	require.NoError(t, err)
	_, err = reg.Declare(ctx, "articles", p)
	assert.ErrorIs(t, err, ErrProviderShared)
	assert.Equal(t, []string{"recipes"}, p.bound, "second type must not rebind the table")
	assert.Equal(t, []string{"recipes"}, reg.Types())

	// redeclaring the same type is allowed
	_, err = reg.Declare(ctx, "recipes", p)
	require.NoError(t, err)
	assert.Equal(t, []string{"recipes", "recipes"}, p.bound)
	assert.Equal(t, 0, p.closed)
}

func TestRegistry_DeclareValidates(t *testing.T) {
	reg := NewRegistry(newTestStore(t), nil)
	_, err := reg.Declare(context.Background(), "bad type", newStub("stub"))
	assert.Error(t, err)
	_, err = reg.Declare(context.Background(), "recipes", nil)
	assert.Error(t, err)
}

func TestRegistry_TypesPersistClose(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newTestStore(t), nil)
	local := &persistStub{stubProvider: newStub("memory")}
	remote := newStub("qdrant")

	_, _ = reg.Declare(ctx, "recipes", local)
	_, _ = reg.Declare(ctx, "articles", remote)
	assert.Equal(t, []string{"articles", "recipes"}, reg.Types())

	require.NoError(t, reg.Persist())
	assert.Equal(t, 1, local.persisted)

	require.NoError(t, reg.Close())
	assert.Equal(t, 1, local.closed)
	assert.Equal(t, 1, remote.closed)
}
