package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/research-office/research-registry/internal/models"
)

var (
	// ErrUniqueViolation is returned when an insert hits a unique key.
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrConstraint is returned for other integrity violations (foreign keys, checks).
	ErrConstraint = errors.New("integrity constraint violated")
	// ErrNotFound is returned by updates targeting a missing record.
	ErrNotFound = errors.New("record not found")
)

// Store is the storage the import pipeline needs: one transaction per row,
// plus a side channel for failed rows that must survive a rollback.
type Store interface {
	// InTx runs fn inside a new transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// RecordFailedImport persists a failed row outside any row transaction.
	RecordFailedImport(ctx context.Context, record *models.FailedImportRecord) error
}

// Tx is the set of typed operations available inside a row transaction.
// Finders return (nil, nil) when nothing matches. Name and email lookups
// are case-insensitive.
type Tx interface {
	// Savepoint runs fn in a nested scope that is undone on error without
	// aborting the enclosing transaction.
	Savepoint(ctx context.Context, fn func(tx Tx) error) error

	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	FindPersonByEmail(ctx context.Context, email string) (*models.Person, error)
	FindPersonByName(ctx context.Context, name string) (*models.Person, error)
	CreatePerson(ctx context.Context, person *models.Person) error
	UpdatePersonName(ctx context.Context, id uuid.UUID, name string) error
	ListPersonEmails(ctx context.Context, personID uuid.UUID) ([]models.PersonEmail, error)
	AddPersonEmail(ctx context.Context, email *models.PersonEmail) error

	FindCampusByName(ctx context.Context, name string) (*models.Campus, error)
	ListCampuses(ctx context.Context) ([]models.Campus, error)
	CampusCodeExists(ctx context.Context, code string) (bool, error)
	CreateCampus(ctx context.Context, campus *models.Campus) error

	FindKnowledgeAreaByName(ctx context.Context, name string) (*models.KnowledgeArea, error)
	CreateKnowledgeArea(ctx context.Context, area *models.KnowledgeArea) error

	FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error

	FindUnit(ctx context.Context, shortName string, campusID *uuid.UUID) (*models.OrganizationalUnit, error)
	FindUnitByName(ctx context.Context, name string) (*models.OrganizationalUnit, error)
	CreateUnit(ctx context.Context, unit *models.OrganizationalUnit) error
	AddUnitLeader(ctx context.Context, unitID, personID uuid.UUID) (bool, error)

	FindInitiativeByName(ctx context.Context, name string) (*models.Initiative, error)
	CreateInitiative(ctx context.Context, initiative *models.Initiative) error
	UpdateInitiativeCoordinator(ctx context.Context, id, coordinatorID uuid.UUID) error
	CreateCoordinatorChange(ctx context.Context, change *models.CoordinatorChange) error
	AddInitiativeMember(ctx context.Context, initiativeID, personID uuid.UUID, role models.MemberRole) (bool, error)
	AddInitiativePartnerUnit(ctx context.Context, initiativeID, unitID uuid.UUID) (bool, error)
}

// mapPgError converts integrity violations into the package sentinels,
// keeping the constraint name for diagnostics.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	case "23503", "23514", "23502": // foreign_key, check, not_null
		return fmt.Errorf("%w: %s (%s)", ErrConstraint, pgErr.ConstraintName, pgErr.Code)
	default:
		return err
	}
}
