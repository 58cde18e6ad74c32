package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/normalize"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

// PersonCriteria identifies a person in a row. Email wins over name.
type PersonCriteria struct {
	Name  string
	Email string
}

// PersonHandler resolves people by email, then by name.
type PersonHandler struct{}

// Resolve finds or creates the person described by c.
//
// With an email: a person already holding that email is returned and renamed
// to c.Name when it differs; otherwise a person with the same name receives
// the email (primary only if they had none); otherwise a new person is
// created with the email as primary. Without an email, people are matched by
// name alone.
func (h PersonHandler) Resolve(ctx context.Context, tx repository.Tx, c PersonCriteria) (Resolution[*models.Person], error) {
	name := normalize.Name(c.Name)
	email := normalize.Email(c.Email)

	if name == "" && email == "" {
		return Resolution[*models.Person]{}, resolutionErrorf("person has neither name nor email")
	}
	if email != "" && !schema.ValidEmail(email) {
		return Resolution[*models.Person]{}, resolutionErrorf("malformed email %q for %q", email, name)
	}

	if email == "" {
		return resolveOrCreate(ctx, "person",
			func(ctx context.Context) (*models.Person, error) {
				return tx.FindPersonByName(ctx, name)
			},
			func(ctx context.Context) (*models.Person, error) {
				p := &models.Person{Name: name}
				return p, tx.CreatePerson(ctx, p)
			},
		)
	}

	return resolveOrCreate(ctx, "person",
		func(ctx context.Context) (*models.Person, error) {
			return h.findByEmailOrName(ctx, tx, name, email)
		},
		func(ctx context.Context) (*models.Person, error) {
			if name == "" {
				return nil, resolutionErrorf("no person holds %s and the row has no name to create one", email)
			}
			p := &models.Person{Name: name}
			err := tx.Savepoint(ctx, func(sp repository.Tx) error {
				if err := sp.CreatePerson(ctx, p); err != nil {
					return err
				}
				return sp.AddPersonEmail(ctx, &models.PersonEmail{PersonID: p.ID, Email: email, Primary: true})
			})
			return p, err
		},
	)
}

func (h PersonHandler) findByEmailOrName(ctx context.Context, tx repository.Tx, name, email string) (*models.Person, error) {
	p, err := tx.FindPersonByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if name != "" && p.Name != name {
			if err := tx.UpdatePersonName(ctx, p.ID, name); err != nil {
				return nil, fmt.Errorf("rename person %s: %w", p.ID, err)
			}
			p.Name = name
		}
		return p, nil
	}

	if name == "" {
		return nil, nil
	}
	p, err = tx.FindPersonByName(ctx, name)
	if err != nil || p == nil {
		return p, err
	}

	emails, err := tx.ListPersonEmails(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	err = tx.AddPersonEmail(ctx, &models.PersonEmail{PersonID: p.ID, Email: email, Primary: !hasPrimary(emails)})
	if errors.Is(err, repository.ErrUniqueViolation) {
		// another writer attached this email first
		return tx.FindPersonByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("attach email to person %s: %w", p.ID, err)
	}
	return p, nil
}

func hasPrimary(emails []models.PersonEmail) bool {
	for _, e := range emails {
		if e.Primary {
			return true
		}
	}
	return false
}
