package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Column names of the research-project export.
const (
	ColTitle            = "Titulo"
	ColCoordinator      = "Coordenador"
	ColCoordinatorEmail = "EmailCoordenador"
	ColStart            = "Inicio"
	ColEnd              = "Fim"
	ColResearchers      = "Pesquisadores"
	ColStudents         = "Estudantes"
	ColKnowledgeArea    = "AreaConhecimento"
	ColResearchGroup    = "GrupoPesquisa"
	ColPartnerGroups    = "GrupoPesquisaExterno"
	ColDemandingPartner = "ParceiroDemandante"
	ColExecutionCampus  = "CampusExecucao"
)

// Column names of the research-group export.
const (
	ColName       = "Nome"
	ColShortName  = "Sigla"
	ColCampus     = "Unidade"
	ColLeaders    = "Lideres"
	ColRepository = "repositorio"
)

// DefaultDateLayout is DD-MM-YY.
const DefaultDateLayout = "02-01-06"

// Schema describes the columns of one import variant and the rules a row
// must satisfy before any entity is touched.
type Schema struct {
	Name            string            `json:"name"`
	Required        []string          `json:"required"`
	Optional        []string          `json:"optional"`
	EmailColumn     string            `json:"email_column,omitempty"`
	StartDateColumn string            `json:"start_date_column,omitempty"`
	EndDateColumn   string            `json:"end_date_column,omitempty"`
	DateLayout      string            `json:"date_layout,omitempty"`
	Aliases         map[string]string `json:"aliases,omitempty"`
}

// ProjectSchema is the research-project variant.
func ProjectSchema() *Schema {
	return &Schema{
		Name:     "projects",
		Required: []string{ColTitle, ColCoordinator, ColCoordinatorEmail, ColStart, ColEnd},
		Optional: []string{
			ColResearchers, ColStudents, ColKnowledgeArea, ColResearchGroup,
			ColPartnerGroups, ColDemandingPartner, ColExecutionCampus,
		},
		EmailColumn:     ColCoordinatorEmail,
		StartDateColumn: ColStart,
		EndDateColumn:   ColEnd,
		DateLayout:      DefaultDateLayout,
	}
}

// GroupSchema is the research-group variant. Leader emails are embedded in
// the Lideres cell and checked while resolving leaders.
func GroupSchema() *Schema {
	return &Schema{
		Name:       "groups",
		Required:   []string{ColName, ColCampus, ColKnowledgeArea, ColLeaders},
		Optional:   []string{ColShortName, ColRepository},
		DateLayout: DefaultDateLayout,
	}
}

// Columns returns every column the schema knows about.
func (s *Schema) Columns() []string {
	out := make([]string, 0, len(s.Required)+len(s.Optional))
	out = append(out, s.Required...)
	out = append(out, s.Optional...)
	return out
}

func (s *Schema) knows(col string) bool {
	for _, c := range s.Columns() {
		if c == col {
			return true
		}
	}
	return false
}

func (s *Schema) clone() *Schema {
	c := *s
	c.Required = append([]string(nil), s.Required...)
	c.Optional = append([]string(nil), s.Optional...)
	c.Aliases = make(map[string]string, len(s.Aliases))
	for k, v := range s.Aliases {
		c.Aliases[k] = v
	}
	return &c
}

// Override is an operator-supplied adjustment to a built-in schema.
type Override struct {
	Required   []string          `json:"required,omitempty"`
	Aliases    map[string]string `json:"aliases,omitempty"`
	DateLayout *string           `json:"date_layout,omitempty"`
}

// Resolve merges an override document into base and returns a new schema.
// base is not modified. An empty or null override returns a copy of base.
func Resolve(base *Schema, override json.RawMessage) (*Schema, error) {
	if base == nil {
		return nil, fmt.Errorf("base schema is required")
	}
	resolved := base.clone()

	if len(override) == 0 || string(override) == "null" {
		return resolved, nil
	}

	var o Override
	if err := json.Unmarshal(override, &o); err != nil {
		return nil, fmt.Errorf("failed to parse schema override: %w", err)
	}

	for _, col := range o.Required {
		if !resolved.knows(col) {
			return nil, fmt.Errorf("cannot require unknown column: %s", col)
		}
		if !contains(resolved.Required, col) {
			resolved.Required = append(resolved.Required, col)
			resolved.Optional = remove(resolved.Optional, col)
		}
	}

	for source, canonical := range o.Aliases {
		if !resolved.knows(canonical) {
			return nil, fmt.Errorf("alias %q targets unknown column: %s", source, canonical)
		}
		resolved.Aliases[source] = canonical
	}

	if o.DateLayout != nil {
		layout := *o.DateLayout
		ref := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
		if parsed, err := time.Parse(layout, ref.Format(layout)); err != nil || !parsed.Equal(ref) {
			return nil, fmt.Errorf("invalid date_layout %q", layout)
		}
		resolved.DateLayout = layout
	}

	return resolved, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
