package entity

import (
	"context"

	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/normalize"
	"github.com/research-office/research-registry/internal/repository"
)

const (
	kindKnowledgeArea = "knowledge_area"
	kindOrganization  = "organization"
)

// KnowledgeAreaHandler gets or creates knowledge areas by name.
type KnowledgeAreaHandler struct{}

func (KnowledgeAreaHandler) Resolve(ctx context.Context, tx repository.Tx, cache *Cache, name string) (Resolution[*models.KnowledgeArea], error) {
	return getOrCreateByName(ctx, cache, kindKnowledgeArea, name,
		tx.FindKnowledgeAreaByName,
		func(ctx context.Context, name string) (*models.KnowledgeArea, error) {
			a := &models.KnowledgeArea{Name: name}
			return a, tx.CreateKnowledgeArea(ctx, a)
		},
	)
}

// OrganizationHandler gets or creates external organizations by name.
type OrganizationHandler struct{}

func (OrganizationHandler) Resolve(ctx context.Context, tx repository.Tx, cache *Cache, name string) (Resolution[*models.Organization], error) {
	return getOrCreateByName(ctx, cache, kindOrganization, name,
		tx.FindOrganizationByName,
		func(ctx context.Context, name string) (*models.Organization, error) {
			o := &models.Organization{Name: name}
			return o, tx.CreateOrganization(ctx, o)
		},
	)
}

func getOrCreateByName[T any](
	ctx context.Context,
	cache *Cache,
	kind, name string,
	find func(ctx context.Context, name string) (*T, error),
	create func(ctx context.Context, name string) (*T, error),
) (Resolution[*T], error) {
	name = normalize.Name(name)
	if name == "" {
		return Resolution[*T]{}, resolutionErrorf("%s name is empty", kind)
	}

	key := normalize.Key(name)
	if v, ok := cached[*T](cache, kind, key); ok {
		return Resolution[*T]{Entity: v, Status: Found}, nil
	}

	res, err := resolveOrCreate(ctx, kind,
		func(ctx context.Context) (*T, error) { return find(ctx, name) },
		func(ctx context.Context) (*T, error) { return create(ctx, name) },
	)
	if err != nil {
		return res, err
	}
	cache.put(kind, key, res.Entity)
	return res, nil
}
