package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/research-office/research-registry/internal/models"
)

const personColumns = `p.id, p.name, p.created_at, p.updated_at`

func scanPerson(row pgx.Row) (*models.Person, error) {
	p := &models.Person{}
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (t *pgTx) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	return scanPerson(t.tx.QueryRow(ctx, `SELECT `+personColumns+` FROM people p WHERE p.id = $1`, id))
}

func (t *pgTx) FindPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	query := `SELECT ` + personColumns + `
		FROM people p JOIN person_emails e ON e.person_id = p.id
		WHERE lower(e.email) = lower($1)`
	return scanPerson(t.tx.QueryRow(ctx, query, email))
}

// FindPersonByName returns the oldest person with the given name.
func (t *pgTx) FindPersonByName(ctx context.Context, name string) (*models.Person, error) {
	query := `SELECT ` + personColumns + `
		FROM people p WHERE lower(p.name) = lower($1)
		ORDER BY p.created_at, p.id LIMIT 1`
	return scanPerson(t.tx.QueryRow(ctx, query, name))
}

func (t *pgTx) CreatePerson(ctx context.Context, person *models.Person) error {
	stampPerson(person)
	return t.insert(ctx,
		`INSERT INTO people (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		person.ID, person.Name, person.CreatedAt, person.UpdatedAt)
}

func (t *pgTx) UpdatePersonName(ctx context.Context, id uuid.UUID, name string) error {
	return t.exec(ctx, `UPDATE people SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
}

func (t *pgTx) ListPersonEmails(ctx context.Context, personID uuid.UUID) ([]models.PersonEmail, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, person_id, email, is_primary, created_at
		FROM person_emails WHERE person_id = $1
		ORDER BY is_primary DESC, created_at`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []models.PersonEmail
	for rows.Next() {
		var e models.PersonEmail
		if err := rows.Scan(&e.ID, &e.PersonID, &e.Email, &e.Primary, &e.CreatedAt); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func (t *pgTx) AddPersonEmail(ctx context.Context, email *models.PersonEmail) error {
	stampPersonEmail(email)
	return t.insert(ctx, `
		INSERT INTO person_emails (id, person_id, email, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		email.ID, email.PersonID, email.Email, email.Primary, email.CreatedAt)
}
