package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/normalize"
	"github.com/research-office/research-registry/internal/repository"
)

// DefaultChangeReason is recorded on coordinator changes detected by imports.
const DefaultChangeReason = "coordinator changed by CSV import"

// InitiativeCriteria describes a research project as it appears in a row.
type InitiativeCriteria struct {
	Name               string
	CoordinatorID      uuid.UUID
	StartDate          *time.Time
	EndDate            *time.Time
	KnowledgeAreaID    *uuid.UUID
	UnitID             *uuid.UUID
	DemandingPartnerID *uuid.UUID
	CampusID           *uuid.UUID
}

// InitiativeResult is what CreateOrGet decided.
type InitiativeResult struct {
	Initiative            *models.Initiative
	Existing              bool
	CoordinatorChanged    bool
	PreviousCoordinatorID uuid.UUID
	Status                Status
}

// InitiativeHandler creates initiatives and tracks coordinator changes.
type InitiativeHandler struct {
	// Reason is stored on every CoordinatorChange. Empty means DefaultChangeReason.
	Reason string
}

// CreateOrGet matches initiatives by name. The same name under the same
// coordinator is an existing initiative. The same name under a different
// coordinator replaces the coordinator and appends exactly one
// CoordinatorChange attributed to actor. Otherwise the initiative is created.
func (h InitiativeHandler) CreateOrGet(ctx context.Context, tx repository.Tx, c InitiativeCriteria, actor string) (InitiativeResult, error) {
	name := normalize.Text(c.Name)
	if name == "" {
		return InitiativeResult{}, resolutionErrorf("initiative title is empty")
	}
	if c.CoordinatorID == uuid.Nil {
		return InitiativeResult{}, resolutionErrorf("initiative %q has no coordinator", name)
	}

	res, err := resolveOrCreate(ctx, "initiative",
		func(ctx context.Context) (*models.Initiative, error) {
			return tx.FindInitiativeByName(ctx, name)
		},
		func(ctx context.Context) (*models.Initiative, error) {
			i := &models.Initiative{
				Name:               name,
				CoordinatorID:      c.CoordinatorID,
				StartDate:          c.StartDate,
				EndDate:            c.EndDate,
				KnowledgeAreaID:    c.KnowledgeAreaID,
				UnitID:             c.UnitID,
				DemandingPartnerID: c.DemandingPartnerID,
				CampusID:           c.CampusID,
			}
			return i, tx.CreateInitiative(ctx, i)
		},
	)
	if err != nil {
		return InitiativeResult{}, err
	}

	result := InitiativeResult{Initiative: res.Entity, Status: res.Status}
	if res.Created() {
		return result, nil
	}

	result.Existing = true
	existing := res.Entity
	if existing.CoordinatorID == c.CoordinatorID {
		return result, nil
	}

	previous := existing.CoordinatorID
	if err := tx.UpdateInitiativeCoordinator(ctx, existing.ID, c.CoordinatorID); err != nil {
		return InitiativeResult{}, fmt.Errorf("update coordinator of initiative %s: %w", existing.ID, err)
	}
	change := &models.CoordinatorChange{
		InitiativeID:          existing.ID,
		PreviousCoordinatorID: previous,
		NewCoordinatorID:      c.CoordinatorID,
		Reason:                h.reason(),
		Actor:                 actor,
	}
	if err := tx.CreateCoordinatorChange(ctx, change); err != nil {
		return InitiativeResult{}, fmt.Errorf("record coordinator change: %w", err)
	}

	existing.CoordinatorID = c.CoordinatorID
	result.CoordinatorChanged = true
	result.PreviousCoordinatorID = previous
	return result, nil
}

func (h InitiativeHandler) reason() string {
	if h.Reason == "" {
		return DefaultChangeReason
	}
	return h.Reason
}

// AttachMembers links people to an initiative under role and returns how
// many links were new.
func (h InitiativeHandler) AttachMembers(ctx context.Context, tx repository.Tx, initiativeID uuid.UUID, people []*models.Person, role models.MemberRole) (int, error) {
	added := 0
	for _, p := range people {
		ok, err := tx.AddInitiativeMember(ctx, initiativeID, p.ID, role)
		if err != nil {
			return added, fmt.Errorf("attach %s %s: %w", role, p.ID, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// AttachPartnerUnits links partner research groups to an initiative.
func (h InitiativeHandler) AttachPartnerUnits(ctx context.Context, tx repository.Tx, initiativeID uuid.UUID, units []*models.OrganizationalUnit) (int, error) {
	added := 0
	for _, u := range units {
		ok, err := tx.AddInitiativePartnerUnit(ctx, initiativeID, u.ID)
		if err != nil {
			return added, fmt.Errorf("attach partner unit %s: %w", u.ID, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
