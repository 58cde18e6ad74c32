package entity

import (
	"context"
	"fmt"

	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/normalize"
	"github.com/research-office/research-registry/internal/repository"
)

const (
	kindCampus = "campus"

	// maxCodeSuffix bounds the search for a free campus code.
	maxCodeSuffix = 99
)

// CampusHandler resolves campuses by name and assigns each new campus a
// unique short code.
type CampusHandler struct{}

// Resolve finds or creates a campus. An exact case-insensitive name match
// wins; otherwise a single stored campus whose name appears as whole words in
// the input is accepted ("Campus Vitória" matches "Vitória").
func (h CampusHandler) Resolve(ctx context.Context, tx repository.Tx, cache *Cache, name string) (Resolution[*models.Campus], error) {
	name = normalize.Name(name)
	if name == "" {
		return Resolution[*models.Campus]{}, resolutionErrorf("campus name is empty")
	}

	key := normalize.Key(name)
	if c, ok := cached[*models.Campus](cache, kindCampus, key); ok {
		return Resolution[*models.Campus]{Entity: c, Status: Found}, nil
	}

	res, err := resolveOrCreate(ctx, kindCampus,
		func(ctx context.Context) (*models.Campus, error) {
			return h.find(ctx, tx, name)
		},
		func(ctx context.Context) (*models.Campus, error) {
			code, err := h.uniqueCode(ctx, tx, normalize.CampusCode(name))
			if err != nil {
				return nil, err
			}
			c := &models.Campus{Name: name, Code: code}
			return c, tx.CreateCampus(ctx, c)
		},
	)
	if err != nil {
		return res, err
	}
	cache.put(kindCampus, key, res.Entity)
	return res, nil
}

func (h CampusHandler) find(ctx context.Context, tx repository.Tx, name string) (*models.Campus, error) {
	c, err := tx.FindCampusByName(ctx, name)
	if err != nil || c != nil {
		return c, err
	}

	campuses, err := tx.ListCampuses(ctx)
	if err != nil {
		return nil, err
	}
	var match *models.Campus
	for i := range campuses {
		stored := &campuses[i]
		if normalize.ContainsFold(name, stored.Name) {
			if match != nil {
				// ambiguous
				return nil, nil
			}
			match = stored
		}
	}
	return match, nil
}

// uniqueCode returns base, or base followed by a two-digit suffix, whichever
// is free first.
func (h CampusHandler) uniqueCode(ctx context.Context, tx repository.Tx, base string) (string, error) {
	code := base
	for i := 1; i <= maxCodeSuffix; i++ {
		exists, err := tx.CampusCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		code = fmt.Sprintf("%s%02d", base, i)
	}
	return "", resolutionErrorf("no free campus code for %s", base)
}
