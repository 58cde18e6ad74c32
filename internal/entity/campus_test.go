package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveCampus(t *testing.T, store *repository.MemoryStore, cache *Cache, name string) Resolution[*models.Campus] {
	t.Helper()
	var res Resolution[*models.Campus]
	inTx(t, store, func(tx repository.Tx) error {
		var err error
		res, err = CampusHandler{}.Resolve(context.Background(), tx, cache, name)
		return err
	})
	return res
}

func TestCampusHandler_CodeSuffixOnCollision(t *testing.T) {
	store := repository.NewMemoryStore()

	assert.Equal(t, "VIT", resolveCampus(t, store, nil, "Vitória").Entity.Code)
	assert.Equal(t, "VIT01", resolveCampus(t, store, nil, "Vitorino").Entity.Code)
	assert.Equal(t, "VIT02", resolveCampus(t, store, nil, "Vitoriana").Entity.Code)
	assert.Len(t, store.Campuses(), 3)
}

func TestCampusHandler_MatchesByWholeWords(t *testing.T) {
	store := repository.NewMemoryStore()
	vit := resolveCampus(t, store, nil, "Vitória")

	again := resolveCampus(t, store, nil, "campus vitoria")
	assert.Equal(t, Found, again.Status)
	assert.Equal(t, vit.Entity.ID, again.Entity.ID)

	serrana := resolveCampus(t, store, nil, "Serrana")
	assert.Equal(t, Created, serrana.Status)
	resolveCampus(t, store, nil, "Serra")

	// "Serra Vitória" contains two stored names and is ambiguous.
	ambiguous := resolveCampus(t, store, nil, "Serra Vitória")
	assert.Equal(t, Created, ambiguous.Status)
}

// racingTx lets another writer insert the same campus right before our insert.
type racingTx struct {
	repository.Tx
}

func (r racingTx) CreateCampus(ctx context.Context, c *models.Campus) error {
	if err := r.Tx.CreateCampus(ctx, &models.Campus{Name: c.Name, Code: c.Code}); err != nil {
		return err
	}
	return repository.ErrUniqueViolation
}

func TestCampusHandler_ConflictRetriedReturnsWinner(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	var res Resolution[*models.Campus]
	inTx(t, store, func(tx repository.Tx) error {
		var err error
		res, err = CampusHandler{}.Resolve(ctx, racingTx{Tx: tx}, nil, "Alegre")
		return err
	})

	assert.Equal(t, ConflictRetried, res.Status)
	campuses := store.Campuses()
	require.Len(t, campuses, 1)
	assert.Equal(t, campuses[0].ID, res.Entity.ID)
}

// lostTx fails every insert without leaving a record behind.
type lostTx struct {
	repository.Tx
}

func (lostTx) CreateKnowledgeArea(context.Context, *models.KnowledgeArea) error {
	return repository.ErrUniqueViolation
}

func TestResolveOrCreate_UnresolvedConflictIsStorageError(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx repository.Tx) error {
		_, err := KnowledgeAreaHandler{}.Resolve(ctx, lostTx{Tx: tx}, nil, "Física")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrUniqueViolation)
	assert.False(t, errors.Is(err, ErrResolution))
}

func TestCache_DiscardAfterRollback(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	cache := NewCache()

	rollback := errors.New("row failed")
	err := store.InTx(ctx, func(tx repository.Tx) error {
		res, err := CampusHandler{}.Resolve(ctx, tx, cache, "Goiabeiras")
		require.NoError(t, err)
		assert.Equal(t, Created, res.Status)
		return rollback
	})
	require.ErrorIs(t, err, rollback)
	cache.Discard()
	assert.Zero(t, cache.Len())

	res := resolveCampus(t, store, cache, "Goiabeiras")
	assert.Equal(t, Created, res.Status, "rolled back campus must not be served from cache")
	cache.Commit()
	assert.Equal(t, 1, cache.Len())

	// served from cache without touching storage
	err = store.InTx(ctx, func(tx repository.Tx) error {
		cachedRes, err := CampusHandler{}.Resolve(ctx, lostTx{Tx: tx}, cache, "goiabeiras")
		require.NoError(t, err)
		assert.Equal(t, res.Entity.ID, cachedRes.Entity.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, store.Campuses(), 1)
}

func TestReferenceHandlers_GetOrCreateByName(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	cache := NewCache()

	inTx(t, store, func(tx repository.Tx) error {
		a, err := KnowledgeAreaHandler{}.Resolve(ctx, tx, cache, "ciências exatas")
		require.NoError(t, err)
		assert.Equal(t, Created, a.Status)

		b, err := KnowledgeAreaHandler{}.Resolve(ctx, tx, cache, "Ciências  Exatas")
		require.NoError(t, err)
		assert.Equal(t, a.Entity.ID, b.Entity.ID)

		o, err := OrganizationHandler{}.Resolve(ctx, tx, cache, "Petrobras")
		require.NoError(t, err)
		assert.Equal(t, Created, o.Status)

		_, err = OrganizationHandler{}.Resolve(ctx, tx, cache, " ")
		assert.ErrorIs(t, err, ErrResolution)
		return nil
	})

	assert.Len(t, store.KnowledgeAreas(), 1)
	assert.Equal(t, "Ciências Exatas", store.KnowledgeAreas()[0].Name)
	assert.Len(t, store.Organizations(), 1)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "conflict_retried", ConflictRetried.String())
}
