package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/normalize"
	"github.com/research-office/research-registry/internal/repository"
)

// UnitCriteria describes a research group as it appears in a row.
type UnitCriteria struct {
	Name            string
	ShortName       string
	Campus          *models.Campus
	KnowledgeAreaID *uuid.UUID
	RepositoryURL   string
}

// UnitHandler resolves organizational units by (short name, campus).
type UnitHandler struct{}

// Resolve finds or creates a unit. When no short name is supplied one is
// generated from the full name and the campus code. An existing unit is
// returned as Found without touching its fields.
func (h UnitHandler) Resolve(ctx context.Context, tx repository.Tx, c UnitCriteria) (Resolution[*models.OrganizationalUnit], error) {
	name := normalize.Name(c.Name)

	var campusID *uuid.UUID
	campusCode := ""
	if c.Campus != nil {
		id := c.Campus.ID
		campusID = &id
		campusCode = c.Campus.Code
	}

	shortName := strings.ToUpper(normalize.Text(c.ShortName))
	if shortName == "" {
		shortName = normalize.ShortName(name, campusCode)
	}
	if name == "" {
		name = shortName
	}

	return resolveOrCreate(ctx, "organizational unit",
		func(ctx context.Context) (*models.OrganizationalUnit, error) {
			return tx.FindUnit(ctx, shortName, campusID)
		},
		func(ctx context.Context) (*models.OrganizationalUnit, error) {
			u := &models.OrganizationalUnit{
				Name:            name,
				ShortName:       shortName,
				CampusID:        campusID,
				KnowledgeAreaID: c.KnowledgeAreaID,
				RepositoryURL:   normalize.EnsureURLScheme(c.RepositoryURL),
			}
			return u, tx.CreateUnit(ctx, u)
		},
	)
}

// ResolveByName finds a unit referenced by its full name, as project rows
// do, creating it on the given campus with a generated short name when no
// unit has that name.
func (h UnitHandler) ResolveByName(ctx context.Context, tx repository.Tx, name string, campus *models.Campus) (Resolution[*models.OrganizationalUnit], error) {
	name = normalize.Name(name)
	if name == "" {
		return Resolution[*models.OrganizationalUnit]{}, resolutionErrorf("research group name is empty")
	}

	u, err := tx.FindUnitByName(ctx, name)
	if err != nil {
		return Resolution[*models.OrganizationalUnit]{}, fmt.Errorf("find organizational unit: %w", err)
	}
	if u != nil {
		return Resolution[*models.OrganizationalUnit]{Entity: u, Status: Found}, nil
	}
	return h.Resolve(ctx, tx, UnitCriteria{Name: name, Campus: campus})
}

// AttachLeaders links people as leaders of a unit and returns how many
// links were new.
func (h UnitHandler) AttachLeaders(ctx context.Context, tx repository.Tx, unitID uuid.UUID, people []*models.Person) (int, error) {
	added := 0
	for _, p := range people {
		ok, err := tx.AddUnitLeader(ctx, unitID, p.ID)
		if err != nil {
			return added, fmt.Errorf("attach leader %s: %w", p.ID, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
