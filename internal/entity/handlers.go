package entity

import (
	"context"
	"regexp"
	"strings"

	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
)

// Handlers bundles one handler per entity kind, in the order rows use them.
type Handlers struct {
	Person        PersonHandler
	Campus        CampusHandler
	KnowledgeArea KnowledgeAreaHandler
	Organization  OrganizationHandler
	Unit          UnitHandler
	Initiative    InitiativeHandler
}

// NewHandlers returns handlers recording changeReason on coordinator changes.
func NewHandlers(changeReason string) *Handlers {
	return &Handlers{Initiative: InitiativeHandler{Reason: changeReason}}
}

var leaderPattern = regexp.MustCompile(`^(.+?)\s*\(\s*([^()\s]+)\s*\)$`)

// ParseLeaders splits a "Name (email), Name (email)" cell.
func ParseLeaders(cell string) ([]PersonCriteria, error) {
	var out []PersonCriteria
	for _, entry := range splitLeaders(cell) {
		m := leaderPattern.FindStringSubmatch(entry)
		if m == nil {
			return nil, resolutionErrorf("malformed leader entry %q, expected \"Name (email)\"", entry)
		}
		out = append(out, PersonCriteria{Name: m[1], Email: m[2]})
	}
	if len(out) == 0 {
		return nil, resolutionErrorf("no leaders listed")
	}
	return out, nil
}

// splitLeaders splits on commas that are outside parentheses.
func splitLeaders(cell string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range cell {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, cell[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, cell[start:])

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolvePeople resolves each name in names without an email.
func (h *Handlers) ResolvePeople(ctx context.Context, tx repository.Tx, names []string) ([]*models.Person, error) {
	people := make([]*models.Person, 0, len(names))
	for _, n := range names {
		res, err := h.Person.Resolve(ctx, tx, PersonCriteria{Name: n})
		if err != nil {
			return nil, err
		}
		people = append(people, res.Entity)
	}
	return people, nil
}
