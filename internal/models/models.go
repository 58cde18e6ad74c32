package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Person is a researcher, student or group leader.
// DB columns: id, name, created_at, updated_at
type Person struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonEmail is one address in a person's email set.
// DB columns: id, person_id, email, is_primary, created_at
type PersonEmail struct {
	ID        uuid.UUID `json:"id"`
	PersonID  uuid.UUID `json:"person_id"`
	Email     string    `json:"email"`
	Primary   bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// Campus is a physical campus of the institution.
// DB columns: id, name, code, created_at
type Campus struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeArea classifies initiatives and groups.
// DB columns: id, name, created_at
type KnowledgeArea struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Organization is an external partner (e.g. the demanding partner of a project).
// DB columns: id, name, created_at
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OrganizationalUnit is a research group. Identity is (short_name, campus_id).
// DB columns: id, name, short_name, campus_id, knowledge_area_id, repository_url, created_at, updated_at
type OrganizationalUnit struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	ShortName       string     `json:"short_name"`
	CampusID        *uuid.UUID `json:"campus_id,omitempty"`
	KnowledgeAreaID *uuid.UUID `json:"knowledge_area_id,omitempty"`
	RepositoryURL   string     `json:"repository_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Initiative is a research project.
// DB columns: id, name, coordinator_id, start_date, end_date, knowledge_area_id,
//
//	unit_id, demanding_partner_id, campus_id, created_at, updated_at
type Initiative struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	CoordinatorID      uuid.UUID  `json:"coordinator_id"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	KnowledgeAreaID    *uuid.UUID `json:"knowledge_area_id,omitempty"`
	UnitID             *uuid.UUID `json:"unit_id,omitempty"`
	DemandingPartnerID *uuid.UUID `json:"demanding_partner_id,omitempty"`
	CampusID           *uuid.UUID `json:"campus_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CoordinatorChange is the history entry written whenever an initiative's
// coordinator is replaced.
// DB columns: id, initiative_id, previous_coordinator_id, new_coordinator_id, reason, actor, changed_at
type CoordinatorChange struct {
	ID                    uuid.UUID `json:"id"`
	InitiativeID          uuid.UUID `json:"initiative_id"`
	PreviousCoordinatorID uuid.UUID `json:"previous_coordinator_id"`
	NewCoordinatorID      uuid.UUID `json:"new_coordinator_id"`
	Reason                string    `json:"reason"`
	Actor                 string    `json:"actor"`
	ChangedAt             time.Time `json:"changed_at"`
}

// MemberRole is the role a person plays in an initiative.
type MemberRole string

const (
	RoleResearcher MemberRole = "researcher"
	RoleStudent    MemberRole = "student"
)

// InitiativeMember links a person to an initiative under a role.
// DB columns: initiative_id, person_id, role, created_at
type InitiativeMember struct {
	InitiativeID uuid.UUID  `json:"initiative_id"`
	PersonID     uuid.UUID  `json:"person_id"`
	Role         MemberRole `json:"role"`
}

// FailedImportRecord keeps a row that could not be committed for operator triage.
// DB columns: id, kind, source, row_number, reason, raw_data, resolved,
//
//	resolution_notes, created_at, resolved_at
type FailedImportRecord struct {
	ID              uuid.UUID       `json:"id"`
	Kind            string          `json:"kind"`
	Source          string          `json:"source"`
	RowNumber       int             `json:"row_number"`
	Reason          string          `json:"reason"`
	RawData         json.RawMessage `json:"raw_data"`
	Resolved        bool            `json:"resolved"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// ImportRun is the persisted summary of one upload through the HTTP service.
// DB columns: id, kind, filename, content_hash, status, total_rows, success_count,
//
//	skip_count, error_count, report, idempotency_key, actor, created_at, completed_at
type ImportRun struct {
	ID             uuid.UUID       `json:"run_id"`
	Kind           string          `json:"kind"`
	Filename       string          `json:"filename"`
	ContentHash    string          `json:"content_hash"`
	Status         string          `json:"status"`
	TotalRows      int             `json:"total_rows"`
	SuccessCount   int             `json:"success_count"`
	SkipCount      int             `json:"skip_count"`
	ErrorCount     int             `json:"error_count"`
	Report         json.RawMessage `json:"report,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	Actor          string          `json:"actor"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Import run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
