package views

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/giygas/prescriptions-web/entities"
)

// FilterDraft is the raw, user-edited filter form. Values are kept as typed so
// the form can be redisplayed unchanged; Filters() drops anything unusable.
type FilterDraft struct {
	Patient    string
	Medication string
	Status     string
	DateFrom   string
	DateTo     string
	Query      string
}

// Filters converts the draft into API filters. The date range applies to the start date.
func (d FilterDraft) Filters() entities.PrescriptionFilters {
	var f entities.PrescriptionFilters
	if id, err := strconv.Atoi(strings.TrimSpace(d.Patient)); err == nil && id > 0 {
		f.Patient = id
	}
	if id, err := strconv.Atoi(strings.TrimSpace(d.Medication)); err == nil && id > 0 {
		f.Medication = id
	}
	if s := entities.PrescriptionStatus(strings.TrimSpace(d.Status)); s.Valid() {
		f.Status = s
	}
	f.DateDebutFrom = normalizeDate(d.DateFrom)
	f.DateDebutTo = normalizeDate(d.DateTo)
	return f
}

// IsZero reports whether nothing is filtered, server side or client side
func (d FilterDraft) IsZero() bool {
	return d.Filters().IsZero() && strings.TrimSpace(d.Query) == ""
}

func normalizeDate(s string) string {
	t, err := entities.ParseDate(s)
	if err != nil {
		return ""
	}
	return t.Format(entities.DateLayout)
}

// ConfirmFunc asks the user whether prescription id should really be deleted
type ConfirmFunc func(id int) bool

// Row is one rendered prescription line
type Row struct {
	ID              int
	PatientName     string
	MedicationLabel string
	DateDebut       string
	DateFin         string
	Status          StatusBadge
	Comment         string
}

// ListSnapshot is a consistent copy of the list state for rendering
type ListSnapshot struct {
	State       LoadState
	Rows        []Row
	Patients    []Option
	Medications []Option
	Statuses    []StatusOption
	Draft       FilterDraft
	Applied     FilterDraft
	Notice      string
}

// Empty reports the "no records" state, distinct from loading and error
func (s ListSnapshot) Empty() bool {
	return s.State.IsReady() && len(s.Rows) == 0
}

// ListView shows the filtered prescriptions table
type ListView struct {
	mu      sync.Mutex
	backend Backend
	scope   scope

	state         LoadState
	patients      map[int]entities.Patient
	medications   map[int]entities.Medication
	prescriptions []entities.Prescription

	draft   FilterDraft
	applied FilterDraft
	notice  string

	generation uint64
	fresh      bool
	token      uint64
}

// NewListView mounts a list view; ctx bounds every call it makes
func NewListView(ctx context.Context, backend Backend) *ListView {
	return &ListView{
		backend:     backend,
		scope:       newScope(ctx),
		state:       Loading(),
		patients:    map[int]entities.Patient{},
		medications: map[int]entities.Medication{},
	}
}

// Unmount cancels in-flight calls; later results are discarded
func (l *ListView) Unmount() {
	l.scope.cancel()
}

// Sync loads unless the last load succeeded with the applied filters and the
// refresh token is unchanged. A failed list is fetched again. The previous
// notice is dropped either way.
func (l *ListView) Sync(token uint64) error {
	l.mu.Lock()
	l.notice = ""
	if l.fresh && l.token == token {
		l.mu.Unlock()
		return nil
	}
	l.token = token
	l.mu.Unlock()

	return l.Load()
}

// Load fetches patients, medications then prescriptions, in that order.
// Only the most recent load may update the view.
func (l *ListView) Load() error {
	if !l.scope.alive() {
		return ErrUnmounted
	}

	l.mu.Lock()
	l.generation++
	gen := l.generation
	filters := l.applied.Filters()
	l.state = Loading()
	l.fresh = false
	l.notice = ""
	l.mu.Unlock()

	ctx := l.scope.ctx
	patients, err := l.backend.Patients.List(ctx)
	var medications []entities.Medication
	if err == nil {
		medications, err = l.backend.Medications.List(ctx)
	}
	var prescriptions []entities.Prescription
	if err == nil {
		prescriptions, err = l.backend.Prescriptions.List(ctx, filters)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.scope.alive() {
		return ErrUnmounted
	}
	if gen != l.generation {
		return ErrSuperseded
	}
	if err != nil {
		l.state = Failed(ErrorMessage(err, MsgLoadFailed))
		return err
	}

	l.patients = make(map[int]entities.Patient, len(patients))
	for _, p := range patients {
		l.patients[p.ID] = p
	}
	l.medications = make(map[int]entities.Medication, len(medications))
	for _, m := range medications {
		l.medications[m.ID] = m
	}
	l.prescriptions = prescriptions
	l.state = Ready()
	l.fresh = true
	return nil
}

// SetDraft edits the filter form without refetching
func (l *ListView) SetDraft(d FilterDraft) {
	l.mu.Lock()
	l.draft = d
	l.mu.Unlock()
}

func (l *ListView) Draft() FilterDraft {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draft
}

// Applied returns the filters of the last load request
func (l *ListView) Applied() FilterDraft {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applied
}

// UseFilters sets both draft and applied filters without loading. The next
// Sync or Delete fetches with them.
func (l *ListView) UseFilters(d FilterDraft) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.draft = d
	if l.applied != d {
		l.applied = d
		l.fresh = false
	}
}

// ApplyFilters makes the draft the applied filters and reloads
func (l *ListView) ApplyFilters() error {
	l.mu.Lock()
	l.applied = l.draft
	l.mu.Unlock()
	return l.Load()
}

// ResetFilters clears draft and applied filters and reloads unfiltered
func (l *ListView) ResetFilters() error {
	l.mu.Lock()
	l.draft = FilterDraft{}
	l.applied = FilterDraft{}
	l.mu.Unlock()
	return l.Load()
}

// Delete removes prescription id once confirm agrees, then reloads.
// The delete call does not wait for the list to be loaded. On failure the
// message becomes the notice; a stale table is refetched first.
func (l *ListView) Delete(id int, confirm ConfirmFunc) error {
	if confirm == nil || !confirm(id) {
		return nil
	}
	if !l.scope.alive() {
		return ErrUnmounted
	}

	err := l.backend.Prescriptions.Delete(l.scope.ctx, id)

	l.mu.Lock()
	if !l.scope.alive() {
		l.mu.Unlock()
		return ErrUnmounted
	}
	if err != nil {
		stale := !l.fresh
		l.mu.Unlock()

		if stale {
			if lerr := l.Load(); errors.Is(lerr, ErrUnmounted) {
				return ErrUnmounted
			}
		}
		l.mu.Lock()
		l.notice = ErrorMessage(err, MsgDeleteFailed)
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	return l.Load()
}

// Snapshot returns the current state, rows filtered by the applied free-text query
func (l *ListView) Snapshot() ListSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := ListSnapshot{
		State:    l.state,
		Statuses: StatusOptions(),
		Draft:    l.draft,
		Applied:  l.applied,
		Notice:   l.notice,
	}

	patients := make([]entities.Patient, 0, len(l.patients))
	for _, p := range l.patients {
		patients = append(patients, p)
	}
	medications := make([]entities.Medication, 0, len(l.medications))
	for _, m := range l.medications {
		medications = append(medications, m)
	}
	snap.Patients = patientOptions(patients)
	snap.Medications = medicationOptions(medications)

	if !l.state.IsReady() {
		return snap
	}

	snap.Rows = make([]Row, 0, len(l.prescriptions))
	for _, p := range l.prescriptions {
		row := l.row(p)
		if !matchesQuery(l.applied.Query, row.PatientName, row.MedicationLabel, row.Comment) {
			continue
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap
}

func (l *ListView) row(p entities.Prescription) Row {
	r := Row{
		ID:              p.ID,
		PatientName:     UnknownLabel,
		MedicationLabel: UnknownLabel,
		DateDebut:       FormatDate(p.DateDebut),
		DateFin:         FormatDate(p.DateFin),
		Status:          BadgeFor(p.Status),
		Comment:         "-",
	}
	if pt, ok := l.patients[p.Patient]; ok {
		r.PatientName = pt.FullName()
	}
	if m, ok := l.medications[p.Medication]; ok {
		r.MedicationLabel = m.Label
	}
	if p.Comment != nil && strings.TrimSpace(*p.Comment) != "" {
		r.Comment = *p.Comment
	}
	return r
}
