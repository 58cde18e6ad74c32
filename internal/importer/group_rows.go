package importer

import (
	"context"
	"fmt"

	"github.com/research-office/research-registry/internal/entity"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

// KindGroups is the kind of research-group imports.
const KindGroups = "groups"

// GroupRows imports research groups and their leaders.
type GroupRows struct {
	handlers *entity.Handlers
}

// NewGroupRows returns a group row handler. A nil h uses default handlers.
func NewGroupRows(h *entity.Handlers) *GroupRows {
	if h == nil {
		h = entity.NewHandlers("")
	}
	return &GroupRows{handlers: h}
}

func (r *GroupRows) Kind() string { return KindGroups }

func (r *GroupRows) Schema() *schema.Schema { return schema.GroupSchema() }

// Handle creates a group unless one with the same short name already exists
// on the campus. Existing groups are skipped and never updated.
func (r *GroupRows) Handle(ctx context.Context, tx repository.Tx, cache *entity.Cache, row RowInput) (Outcome, error) {
	h := r.handlers

	campus, err := h.Campus.Resolve(ctx, tx, cache, row.Get(schema.ColCampus))
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve campus: %w", err)
	}
	area, err := h.KnowledgeArea.Resolve(ctx, tx, cache, row.Get(schema.ColKnowledgeArea))
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve knowledge area: %w", err)
	}

	unit, err := h.Unit.Resolve(ctx, tx, entity.UnitCriteria{
		Name:            row.Get(schema.ColName),
		ShortName:       row.Get(schema.ColShortName),
		Campus:          campus.Entity,
		KnowledgeAreaID: idOf(area.Entity.ID),
		RepositoryURL:   row.Get(schema.ColRepository),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve research group: %w", err)
	}
	if !unit.Created() {
		return Skip("group '%s' (%s) already exists on campus %s",
			unit.Entity.Name, unit.Entity.ShortName, campus.Entity.Code), nil
	}

	criteria, err := entity.ParseLeaders(row.Get(schema.ColLeaders))
	if err != nil {
		return Outcome{}, err
	}
	leaders := make([]*models.Person, 0, len(criteria))
	for _, c := range criteria {
		res, err := h.Person.Resolve(ctx, tx, c)
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve leader %q: %w", c.Name, err)
		}
		leaders = append(leaders, res.Entity)
	}
	n, err := h.Unit.AttachLeaders(ctx, tx, unit.Entity.ID, leaders)
	if err != nil {
		return Outcome{}, err
	}

	return Commit("created group '%s' (%s) with %d leaders", unit.Entity.Name, unit.Entity.ShortName, n), nil
}
