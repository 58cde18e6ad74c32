package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/research-office/research-registry/internal/entity"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/normalize"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

// KindProjects is the kind of research-project imports.
const KindProjects = "projects"

const (
	memberSeparator  = ";"
	partnerSeparator = ","
)

// ProjectRows imports research projects.
type ProjectRows struct {
	handlers *entity.Handlers
}

// NewProjectRows returns a project row handler. A nil h uses default handlers.
func NewProjectRows(h *entity.Handlers) *ProjectRows {
	if h == nil {
		h = entity.NewHandlers("")
	}
	return &ProjectRows{handlers: h}
}

func (r *ProjectRows) Kind() string { return KindProjects }

func (r *ProjectRows) Schema() *schema.Schema { return schema.ProjectSchema() }

// Handle resolves the coordinator, then campus, knowledge area, owning group
// and demanding partner, then the initiative, and finally attaches members
// and partner groups.
func (r *ProjectRows) Handle(ctx context.Context, tx repository.Tx, cache *entity.Cache, row RowInput) (Outcome, error) {
	h := r.handlers

	coordinator, err := h.Person.Resolve(ctx, tx, entity.PersonCriteria{
		Name:  row.Get(schema.ColCoordinator),
		Email: row.Get(schema.ColCoordinatorEmail),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve coordinator: %w", err)
	}

	criteria := entity.InitiativeCriteria{
		Name:          row.Get(schema.ColTitle),
		CoordinatorID: coordinator.Entity.ID,
	}
	if criteria.StartDate, err = row.Schema.ParseDate(row.Get(schema.ColStart)); err != nil {
		return Outcome{}, err
	}
	if criteria.EndDate, err = row.Schema.ParseDate(row.Get(schema.ColEnd)); err != nil {
		return Outcome{}, err
	}

	var campus *models.Campus
	if name := row.Get(schema.ColExecutionCampus); name != "" {
		res, err := h.Campus.Resolve(ctx, tx, cache, name)
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve campus: %w", err)
		}
		campus = res.Entity
		criteria.CampusID = idOf(campus.ID)
	}

	if name := row.Get(schema.ColKnowledgeArea); name != "" {
		res, err := h.KnowledgeArea.Resolve(ctx, tx, cache, name)
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve knowledge area: %w", err)
		}
		criteria.KnowledgeAreaID = idOf(res.Entity.ID)
	}

	if name := row.Get(schema.ColResearchGroup); name != "" {
		res, err := h.Unit.ResolveByName(ctx, tx, name, campus)
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve research group: %w", err)
		}
		criteria.UnitID = idOf(res.Entity.ID)
	}

	if name := row.Get(schema.ColDemandingPartner); name != "" {
		res, err := h.Organization.Resolve(ctx, tx, cache, name)
		if err != nil {
			return Outcome{}, fmt.Errorf("resolve demanding partner: %w", err)
		}
		criteria.DemandingPartnerID = idOf(res.Entity.ID)
	}

	result, err := h.Initiative.CreateOrGet(ctx, tx, criteria, row.Actor)
	if err != nil {
		return Outcome{}, err
	}
	initiative := result.Initiative

	links, err := r.attach(ctx, tx, row, initiative.ID)
	if err != nil {
		return Outcome{}, err
	}

	switch {
	case !result.Existing:
		return Commit("created initiative '%s'", initiative.Name), nil
	case result.CoordinatorChanged:
		previous, err := tx.GetPerson(ctx, result.PreviousCoordinatorID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load previous coordinator: %w", err)
		}
		from := result.PreviousCoordinatorID.String()
		if previous != nil {
			from = previous.Name
		}
		return Commit("updated existing initiative '%s': coordinator changed from %s to %s",
			initiative.Name, from, coordinator.Entity.Name), nil
	case links > 0:
		return Commit("updated existing initiative '%s': %d new links", initiative.Name, links), nil
	default:
		return Skip("initiative '%s' already exists", initiative.Name), nil
	}
}

// attach links researchers, students and partner groups and returns how
// many links were new.
func (r *ProjectRows) attach(ctx context.Context, tx repository.Tx, row RowInput, initiativeID uuid.UUID) (int, error) {
	h := r.handlers
	total := 0

	members := []struct {
		column string
		role   models.MemberRole
	}{
		{schema.ColResearchers, models.RoleResearcher},
		{schema.ColStudents, models.RoleStudent},
	}
	for _, m := range members {
		names := normalize.SplitList(row.Get(m.column), memberSeparator)
		if len(names) == 0 {
			continue
		}
		people, err := h.ResolvePeople(ctx, tx, names)
		if err != nil {
			return 0, fmt.Errorf("resolve %ss: %w", m.role, err)
		}
		n, err := h.Initiative.AttachMembers(ctx, tx, initiativeID, people, m.role)
		if err != nil {
			return 0, err
		}
		total += n
	}

	var partners []*models.OrganizationalUnit
	for _, name := range normalize.SplitList(row.Get(schema.ColPartnerGroups), partnerSeparator) {
		res, err := h.Unit.ResolveByName(ctx, tx, name, nil)
		if err != nil {
			return 0, fmt.Errorf("resolve partner group %q: %w", name, err)
		}
		partners = append(partners, res.Entity)
	}
	n, err := h.Initiative.AttachPartnerUnits(ctx, tx, initiativeID, partners)
	if err != nil {
		return 0, err
	}
	return total + n, nil
}

func idOf(id uuid.UUID) *uuid.UUID {
	return &id
}
