package entity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOrGet(t *testing.T, store *repository.MemoryStore, h InitiativeHandler, c InitiativeCriteria) InitiativeResult {
	t.Helper()
	var res InitiativeResult
	inTx(t, store, func(tx repository.Tx) error {
		var err error
		res, err = h.CreateOrGet(context.Background(), tx, c, "importer@ufes.br")
		return err
	})
	return res
}

func TestInitiativeHandler_CreateThenExisting(t *testing.T) {
	store := repository.NewMemoryStore()
	coord := resolvePerson(t, store, PersonCriteria{Name: "Ana Lima", Email: "ana@ufes.br"}).Entity

	created := createOrGet(t, store, InitiativeHandler{}, InitiativeCriteria{Name: "Sensores  IoT para Agricultura", CoordinatorID: coord.ID})
	assert.False(t, created.Existing)
	assert.Equal(t, Created, created.Status)
	assert.Equal(t, "Sensores IoT para Agricultura", created.Initiative.Name, "titles keep their casing")

	again := createOrGet(t, store, InitiativeHandler{}, InitiativeCriteria{Name: "sensores iot para agricultura", CoordinatorID: coord.ID})
	assert.True(t, again.Existing)
	assert.False(t, again.CoordinatorChanged)
	assert.Equal(t, created.Initiative.ID, again.Initiative.ID)

	initiatives := store.Initiatives()
	require.Len(t, initiatives, 1)
	assert.Equal(t, "Sensores IoT para Agricultura", initiatives[0].Name, "first spelling is kept")
	assert.Empty(t, store.CoordinatorChanges())
}

func TestInitiativeHandler_CoordinatorChangeWritesOneRecord(t *testing.T) {
	store := repository.NewMemoryStore()
	ana := resolvePerson(t, store, PersonCriteria{Name: "Ana Lima", Email: "ana@ufes.br"}).Entity
	rui := resolvePerson(t, store, PersonCriteria{Name: "Rui Alves", Email: "rui@ufes.br"}).Entity
	h := InitiativeHandler{Reason: "spreadsheet update"}

	first := createOrGet(t, store, h, InitiativeCriteria{Name: "Projeto X", CoordinatorID: ana.ID})
	changed := createOrGet(t, store, h, InitiativeCriteria{Name: "Projeto X", CoordinatorID: rui.ID})

	assert.True(t, changed.Existing)
	assert.True(t, changed.CoordinatorChanged)
	assert.Equal(t, ana.ID, changed.PreviousCoordinatorID)
	assert.Equal(t, rui.ID, changed.Initiative.CoordinatorID)

	initiatives := store.Initiatives()
	require.Len(t, initiatives, 1)
	assert.Equal(t, first.Initiative.ID, initiatives[0].ID)
	assert.Equal(t, rui.ID, initiatives[0].CoordinatorID)

	changes := store.CoordinatorChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, ana.ID, changes[0].PreviousCoordinatorID)
	assert.Equal(t, rui.ID, changes[0].NewCoordinatorID)
	assert.Equal(t, "spreadsheet update", changes[0].Reason)
	assert.Equal(t, "importer@ufes.br", changes[0].Actor)

	// re-importing the new state changes nothing
	createOrGet(t, store, h, InitiativeCriteria{Name: "Projeto X", CoordinatorID: rui.ID})
	assert.Len(t, store.CoordinatorChanges(), 1)
}

func TestInitiativeHandler_DefaultReason(t *testing.T) {
	assert.Equal(t, DefaultChangeReason, InitiativeHandler{}.reason())
	assert.Equal(t, "x", NewHandlers("x").Initiative.reason())
}

func TestInitiativeHandler_RejectsIncompleteCriteria(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx repository.Tx) error {
		_, err := InitiativeHandler{}.CreateOrGet(ctx, tx, InitiativeCriteria{Name: "Projeto", CoordinatorID: uuid.Nil}, "")
		return err
	})
	assert.ErrorIs(t, err, ErrResolution)

	err = store.InTx(ctx, func(tx repository.Tx) error {
		_, err := InitiativeHandler{}.CreateOrGet(ctx, tx, InitiativeCriteria{Name: " ", CoordinatorID: uuid.New()}, "")
		return err
	})
	assert.ErrorIs(t, err, ErrResolution)
}

func TestInitiativeHandler_AttachLinksCountOnlyNew(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	coord := resolvePerson(t, store, PersonCriteria{Name: "Ana Lima", Email: "ana@ufes.br"}).Entity
	res := createOrGet(t, store, InitiativeHandler{}, InitiativeCriteria{Name: "Projeto Y", CoordinatorID: coord.ID})
	id := res.Initiative.ID

	inTx(t, store, func(tx repository.Tx) error {
		h := NewHandlers("")
		people, err := h.ResolvePeople(ctx, tx, []string{"Rui Alves", "Lia Souza"})
		require.NoError(t, err)

		n, err := h.Initiative.AttachMembers(ctx, tx, id, people, models.RoleResearcher)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = h.Initiative.AttachMembers(ctx, tx, id, people[:1], models.RoleStudent)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "the same person under another role is a new link")

		n, err = h.Initiative.AttachMembers(ctx, tx, id, people, models.RoleResearcher)
		require.NoError(t, err)
		assert.Zero(t, n)

		unit, err := h.Unit.Resolve(ctx, tx, UnitCriteria{Name: "Grupo Parceiro", ShortName: "GP"})
		require.NoError(t, err)
		units := []*models.OrganizationalUnit{unit.Entity, unit.Entity}
		n, err = h.Initiative.AttachPartnerUnits(ctx, tx, id, units)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})

	assert.Len(t, store.Members(id), 3)
	assert.Len(t, store.PartnerUnits(id), 1)
}
