package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/research-office/research-registry/internal/models"
)

// Campuses, knowledge areas, organizations and organizational units.

const campusColumns = `id, name, code, created_at`

func scanCampus(row pgx.Row) (*models.Campus, error) {
	c := &models.Campus{}
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (t *pgTx) FindCampusByName(ctx context.Context, name string) (*models.Campus, error) {
	return scanCampus(t.tx.QueryRow(ctx,
		`SELECT `+campusColumns+` FROM campuses WHERE lower(name) = lower($1)`, name))
}

func (t *pgTx) ListCampuses(ctx context.Context) ([]models.Campus, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+campusColumns+` FROM campuses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campuses []models.Campus
	for rows.Next() {
		var c models.Campus
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, err
		}
		campuses = append(campuses, c)
	}
	return campuses, rows.Err()
}

func (t *pgTx) CampusCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM campuses WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (t *pgTx) CreateCampus(ctx context.Context, campus *models.Campus) error {
	stampCampus(campus)
	return t.insert(ctx,
		`INSERT INTO campuses (id, name, code, created_at) VALUES ($1, $2, $3, $4)`,
		campus.ID, campus.Name, campus.Code, campus.CreatedAt)
}

func (t *pgTx) FindKnowledgeAreaByName(ctx context.Context, name string) (*models.KnowledgeArea, error) {
	a := &models.KnowledgeArea{}
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, created_at FROM knowledge_areas WHERE lower(name) = lower($1)`, name,
	).Scan(&a.ID, &a.Name, &a.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (t *pgTx) CreateKnowledgeArea(ctx context.Context, area *models.KnowledgeArea) error {
	stampKnowledgeArea(area)
	return t.insert(ctx,
		`INSERT INTO knowledge_areas (id, name, created_at) VALUES ($1, $2, $3)`,
		area.ID, area.Name, area.CreatedAt)
}

func (t *pgTx) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	o := &models.Organization{}
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE lower(name) = lower($1)`, name,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

func (t *pgTx) CreateOrganization(ctx context.Context, org *models.Organization) error {
	stampOrganization(org)
	return t.insert(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.CreatedAt)
}

const unitColumns = `id, name, short_name, campus_id, knowledge_area_id, repository_url, created_at, updated_at`

func scanUnit(row pgx.Row) (*models.OrganizationalUnit, error) {
	u := &models.OrganizationalUnit{}
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.ShortName,
		&u.CampusID,
		&u.KnowledgeAreaID,
		&u.RepositoryURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (t *pgTx) FindUnit(ctx context.Context, shortName string, campusID *uuid.UUID) (*models.OrganizationalUnit, error) {
	return scanUnit(t.tx.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM organizational_units
		WHERE lower(short_name) = lower($1) AND campus_id IS NOT DISTINCT FROM $2`,
		shortName, campusID))
}

// FindUnitByName returns the oldest unit with the given full name.
func (t *pgTx) FindUnitByName(ctx context.Context, name string) (*models.OrganizationalUnit, error) {
	return scanUnit(t.tx.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM organizational_units
		WHERE lower(name) = lower($1) ORDER BY created_at, id LIMIT 1`, name))
}

func (t *pgTx) CreateUnit(ctx context.Context, unit *models.OrganizationalUnit) error {
	stampUnit(unit)
	return t.insert(ctx, `
		INSERT INTO organizational_units (`+unitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		unit.ID, unit.Name, unit.ShortName, unit.CampusID, unit.KnowledgeAreaID,
		unit.RepositoryURL, unit.CreatedAt, unit.UpdatedAt)
}

func (t *pgTx) AddUnitLeader(ctx context.Context, unitID, personID uuid.UUID) (bool, error) {
	return t.link(ctx, `
		INSERT INTO unit_leaders (unit_id, person_id) VALUES ($1, $2)
		ON CONFLICT (unit_id, person_id) DO NOTHING`, unitID, personID)
}
