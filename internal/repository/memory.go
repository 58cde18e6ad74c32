package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/research-office/research-registry/internal/models"
)

type pairKey struct {
	a, b uuid.UUID
}

type memberKey struct {
	initiative, person uuid.UUID
	role               models.MemberRole
}

type memState struct {
	seq         int
	order       map[uuid.UUID]int
	people      map[uuid.UUID]models.Person
	emails      map[uuid.UUID]models.PersonEmail
	campuses    map[uuid.UUID]models.Campus
	areas       map[uuid.UUID]models.KnowledgeArea
	orgs        map[uuid.UUID]models.Organization
	units       map[uuid.UUID]models.OrganizationalUnit
	leaders     map[pairKey]struct{}
	initiatives map[uuid.UUID]models.Initiative
	members     map[memberKey]struct{}
	partners    map[pairKey]struct{}
	changes     []models.CoordinatorChange
}

func newMemState() memState {
	return memState{
		order:       map[uuid.UUID]int{},
		people:      map[uuid.UUID]models.Person{},
		emails:      map[uuid.UUID]models.PersonEmail{},
		campuses:    map[uuid.UUID]models.Campus{},
		areas:       map[uuid.UUID]models.KnowledgeArea{},
		orgs:        map[uuid.UUID]models.Organization{},
		units:       map[uuid.UUID]models.OrganizationalUnit{},
		leaders:     map[pairKey]struct{}{},
		initiatives: map[uuid.UUID]models.Initiative{},
		members:     map[memberKey]struct{}{},
		partners:    map[pairKey]struct{}{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	return memState{
		seq:         s.seq,
		order:       cloneMap(s.order),
		people:      cloneMap(s.people),
		emails:      cloneMap(s.emails),
		campuses:    cloneMap(s.campuses),
		areas:       cloneMap(s.areas),
		orgs:        cloneMap(s.orgs),
		units:       cloneMap(s.units),
		leaders:     cloneMap(s.leaders),
		initiatives: cloneMap(s.initiatives),
		members:     cloneMap(s.members),
		partners:    cloneMap(s.partners),
		changes:     append([]models.CoordinatorChange(nil), s.changes...),
	}
}

func (s *memState) track(id uuid.UUID) {
	s.seq++
	s.order[id] = s.seq
}

// MemoryStore is an in-process Store. Each transaction works on a copy of
// the state that replaces the committed state only when fn succeeds.
// It enforces the same unique keys as the Postgres schema.
type MemoryStore struct {
	mu     sync.RWMutex
	state  memState
	failed []models.FailedImportRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// InTx executes fn within a transactional copy of the store state.
func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// RecordFailedImport appends a failed row record.
func (s *MemoryStore) RecordFailedImport(_ context.Context, record *models.FailedImportRecord) error {
	if record == nil {
		return fmt.Errorf("failed import record cannot be nil")
	}
	stampFailedImport(record)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, *record)
	return nil
}

// FailedImports returns the recorded failed rows in insertion order.
func (s *MemoryStore) FailedImports() []models.FailedImportRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FailedImportRecord(nil), s.failed...)
}

func sortedValues[V any](s memState, m map[uuid.UUID]V) []V {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.order[ids[i]] < s.order[ids[j]] })
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// People returns committed people in creation order.
func (s *MemoryStore) People() []models.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state, s.state.people)
}

// PersonEmails returns the committed emails of a person, primary first.
func (s *MemoryStore) PersonEmails(personID uuid.UUID) []models.PersonEmail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.personEmails(personID)
}

// Campuses returns committed campuses in creation order.
func (s *MemoryStore) Campuses() []models.Campus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state, s.state.campuses)
}

// KnowledgeAreas returns committed knowledge areas in creation order.
func (s *MemoryStore) KnowledgeAreas() []models.KnowledgeArea {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state, s.state.areas)
}

// Organizations returns committed organizations in creation order.
func (s *MemoryStore) Organizations() []models.Organization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state, s.state.orgs)
}

// Units returns committed organizational units in creation order.
func (s *MemoryStore) Units() []models.OrganizationalUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state, s.state.units)
}

// Initiatives returns committed initiatives in creation order.
func (s *MemoryStore) Initiatives() []models.Initiative {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.state, s.state.initiatives)
}

// CoordinatorChanges returns the committed coordinator history.
func (s *MemoryStore) CoordinatorChanges() []models.CoordinatorChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CoordinatorChange(nil), s.state.changes...)
}

// Members returns the committed members of an initiative.
func (s *MemoryStore) Members(initiativeID uuid.UUID) []models.InitiativeMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.InitiativeMember
	for k := range s.state.members {
		if k.initiative == initiativeID {
			out = append(out, models.InitiativeMember{InitiativeID: k.initiative, PersonID: k.person, Role: k.role})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return s.state.order[out[i].PersonID] < s.state.order[out[j].PersonID]
	})
	return out
}

// PartnerUnits returns the ids of partner units linked to an initiative.
func (s *MemoryStore) PartnerUnits(initiativeID uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.linked(s.state.partners, initiativeID)
}

// UnitLeaders returns the ids of the leaders of a unit.
func (s *MemoryStore) UnitLeaders(unitID uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.linked(s.state.leaders, unitID)
}

func (s memState) linked(links map[pairKey]struct{}, from uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for k := range links {
		if k.a == from {
			out = append(out, k.b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i]] < s.order[out[j]] })
	return out
}

func (s memState) personEmails(personID uuid.UUID) []models.PersonEmail {
	var out []models.PersonEmail
	for _, e := range sortedValues(s, s.emails) {
		if e.PersonID == personID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Primary && !out[j].Primary })
	return out
}

type memTx struct {
	state memState
}

func (t *memTx) Savepoint(_ context.Context, fn func(tx Tx) error) error {
	child := &memTx{state: t.state.clone()}
	if err := fn(child); err != nil {
		return err
	}
	t.state = child.state
	return nil
}

func fold(s string) string {
	return strings.ToLower(s)
}

func unique(constraint string) error {
	return fmt.Errorf("%w: %s", ErrUniqueViolation, constraint)
}

// firstBy returns the oldest value matching pred.
func firstBy[V any](s memState, m map[uuid.UUID]V, pred func(V) bool) *V {
	for _, v := range sortedValues(s, m) {
		if pred(v) {
			out := v
			return &out
		}
	}
	return nil
}

func (t *memTx) GetPerson(_ context.Context, id uuid.UUID) (*models.Person, error) {
	p, ok := t.state.people[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memTx) FindPersonByEmail(_ context.Context, email string) (*models.Person, error) {
	for _, e := range t.state.emails {
		if fold(e.Email) == fold(email) {
			p := t.state.people[e.PersonID]
			return &p, nil
		}
	}
	return nil, nil
}

func (t *memTx) FindPersonByName(_ context.Context, name string) (*models.Person, error) {
	return firstBy(t.state, t.state.people, func(p models.Person) bool { return fold(p.Name) == fold(name) }), nil
}

func (t *memTx) CreatePerson(_ context.Context, person *models.Person) error {
	stampPerson(person)
	if _, ok := t.state.people[person.ID]; ok {
		return unique("people_pkey")
	}
	t.state.people[person.ID] = *person
	t.state.track(person.ID)
	return nil
}

func (t *memTx) UpdatePersonName(_ context.Context, id uuid.UUID, name string) error {
	p, ok := t.state.people[id]
	if !ok {
		return ErrNotFound
	}
	p.Name = name
	t.state.people[id] = p
	return nil
}

func (t *memTx) ListPersonEmails(_ context.Context, personID uuid.UUID) ([]models.PersonEmail, error) {
	return t.state.personEmails(personID), nil
}

func (t *memTx) AddPersonEmail(_ context.Context, email *models.PersonEmail) error {
	stampPersonEmail(email)
	if _, ok := t.state.people[email.PersonID]; !ok {
		return fmt.Errorf("%w: person_emails_person_id_fkey", ErrConstraint)
	}
	for _, e := range t.state.emails {
		if fold(e.Email) == fold(email.Email) {
			return unique("person_emails_email_key")
		}
		if email.Primary && e.Primary && e.PersonID == email.PersonID {
			return unique("person_emails_one_primary")
		}
	}
	t.state.emails[email.ID] = *email
	t.state.track(email.ID)
	return nil
}

func (t *memTx) FindCampusByName(_ context.Context, name string) (*models.Campus, error) {
	return firstBy(t.state, t.state.campuses, func(c models.Campus) bool { return fold(c.Name) == fold(name) }), nil
}

func (t *memTx) ListCampuses(_ context.Context) ([]models.Campus, error) {
	return sortedValues(t.state, t.state.campuses), nil
}

func (t *memTx) CampusCodeExists(_ context.Context, code string) (bool, error) {
	for _, c := range t.state.campuses {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateCampus(_ context.Context, campus *models.Campus) error {
	stampCampus(campus)
	for _, c := range t.state.campuses {
		if fold(c.Name) == fold(campus.Name) {
			return unique("campuses_name_key")
		}
		if c.Code == campus.Code {
			return unique("campuses_code_key")
		}
	}
	t.state.campuses[campus.ID] = *campus
	t.state.track(campus.ID)
	return nil
}

func (t *memTx) FindKnowledgeAreaByName(_ context.Context, name string) (*models.KnowledgeArea, error) {
	return firstBy(t.state, t.state.areas, func(a models.KnowledgeArea) bool { return fold(a.Name) == fold(name) }), nil
}

func (t *memTx) CreateKnowledgeArea(_ context.Context, area *models.KnowledgeArea) error {
	stampKnowledgeArea(area)
	for _, a := range t.state.areas {
		if fold(a.Name) == fold(area.Name) {
			return unique("knowledge_areas_name_key")
		}
	}
	t.state.areas[area.ID] = *area
	t.state.track(area.ID)
	return nil
}

func (t *memTx) FindOrganizationByName(_ context.Context, name string) (*models.Organization, error) {
	return firstBy(t.state, t.state.orgs, func(o models.Organization) bool { return fold(o.Name) == fold(name) }), nil
}

func (t *memTx) CreateOrganization(_ context.Context, org *models.Organization) error {
	stampOrganization(org)
	for _, o := range t.state.orgs {
		if fold(o.Name) == fold(org.Name) {
			return unique("organizations_name_key")
		}
	}
	t.state.orgs[org.ID] = *org
	t.state.track(org.ID)
	return nil
}

func sameCampus(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (t *memTx) FindUnit(_ context.Context, shortName string, campusID *uuid.UUID) (*models.OrganizationalUnit, error) {
	return firstBy(t.state, t.state.units, func(u models.OrganizationalUnit) bool {
		return fold(u.ShortName) == fold(shortName) && sameCampus(u.CampusID, campusID)
	}), nil
}

func (t *memTx) FindUnitByName(_ context.Context, name string) (*models.OrganizationalUnit, error) {
	return firstBy(t.state, t.state.units, func(u models.OrganizationalUnit) bool { return fold(u.Name) == fold(name) }), nil
}

func (t *memTx) CreateUnit(_ context.Context, unit *models.OrganizationalUnit) error {
	stampUnit(unit)
	for _, u := range t.state.units {
		if fold(u.ShortName) == fold(unit.ShortName) && sameCampus(u.CampusID, unit.CampusID) {
			return unique("organizational_units_short_name_campus_key")
		}
	}
	t.state.units[unit.ID] = *unit
	t.state.track(unit.ID)
	return nil
}

func (t *memTx) AddUnitLeader(_ context.Context, unitID, personID uuid.UUID) (bool, error) {
	k := pairKey{unitID, personID}
	if _, ok := t.state.leaders[k]; ok {
		return false, nil
	}
	t.state.leaders[k] = struct{}{}
	return true, nil
}

func (t *memTx) FindInitiativeByName(_ context.Context, name string) (*models.Initiative, error) {
	return firstBy(t.state, t.state.initiatives, func(i models.Initiative) bool { return fold(i.Name) == fold(name) }), nil
}

func (t *memTx) CreateInitiative(_ context.Context, initiative *models.Initiative) error {
	stampInitiative(initiative)
	if initiative.StartDate != nil && initiative.EndDate != nil && initiative.EndDate.Before(*initiative.StartDate) {
		return fmt.Errorf("%w: initiatives_dates_check", ErrConstraint)
	}
	for _, i := range t.state.initiatives {
		if fold(i.Name) == fold(initiative.Name) {
			return unique("initiatives_name_key")
		}
	}
	t.state.initiatives[initiative.ID] = *initiative
	t.state.track(initiative.ID)
	return nil
}

func (t *memTx) UpdateInitiativeCoordinator(_ context.Context, id, coordinatorID uuid.UUID) error {
	i, ok := t.state.initiatives[id]
	if !ok {
		return ErrNotFound
	}
	i.CoordinatorID = coordinatorID
	t.state.initiatives[id] = i
	return nil
}

func (t *memTx) CreateCoordinatorChange(_ context.Context, change *models.CoordinatorChange) error {
	stampCoordinatorChange(change)
	if _, ok := t.state.initiatives[change.InitiativeID]; !ok {
		return fmt.Errorf("%w: coordinator_changes_initiative_id_fkey", ErrConstraint)
	}
	t.state.changes = append(t.state.changes, *change)
	return nil
}

func (t *memTx) AddInitiativeMember(_ context.Context, initiativeID, personID uuid.UUID, role models.MemberRole) (bool, error) {
	k := memberKey{initiativeID, personID, role}
	if _, ok := t.state.members[k]; ok {
		return false, nil
	}
	t.state.members[k] = struct{}{}
	return true, nil
}

func (t *memTx) AddInitiativePartnerUnit(_ context.Context, initiativeID, unitID uuid.UUID) (bool, error) {
	k := pairKey{initiativeID, unitID}
	if _, ok := t.state.partners[k]; ok {
		return false, nil
	}
	t.state.partners[k] = struct{}{}
	return true, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
