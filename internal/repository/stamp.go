package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/research-office/research-registry/internal/models"
)

// Stamping fills ids and timestamps left zero by callers, so both store
// implementations persist identical shapes.

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func ensureTime(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}

func stampPerson(p *models.Person) {
	now := time.Now().UTC()
	ensureID(&p.ID)
	ensureTime(&p.CreatedAt, now)
	ensureTime(&p.UpdatedAt, now)
}

func stampPersonEmail(e *models.PersonEmail) {
	ensureID(&e.ID)
	ensureTime(&e.CreatedAt, time.Now().UTC())
}

func stampCampus(c *models.Campus) {
	ensureID(&c.ID)
	ensureTime(&c.CreatedAt, time.Now().UTC())
}

func stampKnowledgeArea(a *models.KnowledgeArea) {
	ensureID(&a.ID)
	ensureTime(&a.CreatedAt, time.Now().UTC())
}

func stampOrganization(o *models.Organization) {
	ensureID(&o.ID)
	ensureTime(&o.CreatedAt, time.Now().UTC())
}

func stampUnit(u *models.OrganizationalUnit) {
	now := time.Now().UTC()
	ensureID(&u.ID)
	ensureTime(&u.CreatedAt, now)
	ensureTime(&u.UpdatedAt, now)
}

func stampInitiative(i *models.Initiative) {
	now := time.Now().UTC()
	ensureID(&i.ID)
	ensureTime(&i.CreatedAt, now)
	ensureTime(&i.UpdatedAt, now)
}

func stampCoordinatorChange(c *models.CoordinatorChange) {
	ensureID(&c.ID)
	ensureTime(&c.ChangedAt, time.Now().UTC())
}

func stampFailedImport(r *models.FailedImportRecord) {
	ensureID(&r.ID)
	ensureTime(&r.CreatedAt, time.Now().UTC())
	if len(r.RawData) == 0 {
		r.RawData = []byte(`{}`)
	}
}
