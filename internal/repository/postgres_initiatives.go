package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/research-office/research-registry/internal/models"
)

const initiativeColumns = `id, name, coordinator_id, start_date, end_date, knowledge_area_id,
	unit_id, demanding_partner_id, campus_id, created_at, updated_at`

func (t *pgTx) FindInitiativeByName(ctx context.Context, name string) (*models.Initiative, error) {
	i := &models.Initiative{}
	err := t.tx.QueryRow(ctx,
		`SELECT `+initiativeColumns+` FROM initiatives WHERE lower(name) = lower($1)`, name,
	).Scan(
		&i.ID,
		&i.Name,
		&i.CoordinatorID,
		&i.StartDate,
		&i.EndDate,
		&i.KnowledgeAreaID,
		&i.UnitID,
		&i.DemandingPartnerID,
		&i.CampusID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return i, nil
}

func (t *pgTx) CreateInitiative(ctx context.Context, initiative *models.Initiative) error {
	stampInitiative(initiative)
	return t.insert(ctx, `
		INSERT INTO initiatives (`+initiativeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		initiative.ID, initiative.Name, initiative.CoordinatorID,
		initiative.StartDate, initiative.EndDate, initiative.KnowledgeAreaID,
		initiative.UnitID, initiative.DemandingPartnerID, initiative.CampusID,
		initiative.CreatedAt, initiative.UpdatedAt)
}

func (t *pgTx) UpdateInitiativeCoordinator(ctx context.Context, id, coordinatorID uuid.UUID) error {
	return t.exec(ctx,
		`UPDATE initiatives SET coordinator_id = $2, updated_at = NOW() WHERE id = $1`,
		id, coordinatorID)
}

func (t *pgTx) CreateCoordinatorChange(ctx context.Context, change *models.CoordinatorChange) error {
	stampCoordinatorChange(change)
	return t.insert(ctx, `
		INSERT INTO coordinator_changes (
			id, initiative_id, previous_coordinator_id, new_coordinator_id, reason, actor, changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		change.ID, change.InitiativeID, change.PreviousCoordinatorID, change.NewCoordinatorID,
		change.Reason, change.Actor, change.ChangedAt)
}

func (t *pgTx) AddInitiativeMember(ctx context.Context, initiativeID, personID uuid.UUID, role models.MemberRole) (bool, error) {
	return t.link(ctx, `
		INSERT INTO initiative_members (initiative_id, person_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (initiative_id, person_id, role) DO NOTHING`,
		initiativeID, personID, string(role))
}

func (t *pgTx) AddInitiativePartnerUnit(ctx context.Context, initiativeID, unitID uuid.UUID) (bool, error) {
	return t.link(ctx, `
		INSERT INTO initiative_partner_units (initiative_id, unit_id) VALUES ($1, $2)
		ON CONFLICT (initiative_id, unit_id) DO NOTHING`,
		initiativeID, unitID)
}
