package views

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giygas/prescriptions-web/entities"
)

// SuccessDisplay is how long the success indicator stays visible after a create
const SuccessDisplay = 3 * time.Second

// MsgCreated is the success indicator text
const MsgCreated = "Prescription créée avec succès!"

// Validation messages, checked in this order
const (
	MsgPatientRequired    = "Veuillez sélectionner un patient"
	MsgMedicationRequired = "Veuillez sélectionner un médicament"
	MsgStartRequired      = "Veuillez entrer une date de début"
	MsgEndRequired        = "Veuillez entrer une date de fin"
	MsgDateInvalid        = "Date invalide (format attendu AAAA-MM-JJ)"
	MsgEndBeforeStart     = "La date de fin doit être supérieure ou égale à la date de début"
)

// ValidationError is a client-side rejection of the form; no call was made
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FormDraft is the create form as typed by the user
type FormDraft struct {
	Patient    string
	Medication string
	DateDebut  string
	DateFin    string
	Status     string
	Comment    string
}

// DefaultDraft is the empty form, status preselected to en_attente
func DefaultDraft() FormDraft {
	return FormDraft{Status: string(entities.StatusPending)}
}

// Validate returns the first failing rule, or nil
func (d FormDraft) Validate() *ValidationError {
	if positiveID(d.Patient) == 0 {
		return &ValidationError{Field: "patient", Message: MsgPatientRequired}
	}
	if positiveID(d.Medication) == 0 {
		return &ValidationError{Field: "medication", Message: MsgMedicationRequired}
	}
	if strings.TrimSpace(d.DateDebut) == "" {
		return &ValidationError{Field: "date_debut", Message: MsgStartRequired}
	}
	if strings.TrimSpace(d.DateFin) == "" {
		return &ValidationError{Field: "date_fin", Message: MsgEndRequired}
	}

	start, err := entities.ParseDate(d.DateDebut)
	if err != nil {
		return &ValidationError{Field: "date_debut", Message: MsgDateInvalid}
	}
	end, err := entities.ParseDate(d.DateFin)
	if err != nil {
		return &ValidationError{Field: "date_fin", Message: MsgDateInvalid}
	}
	if end.Before(start) {
		return &ValidationError{Field: "date_fin", Message: MsgEndBeforeStart}
	}
	return nil
}

// Payload builds the create request. Call only on a draft that validates.
func (d FormDraft) Payload() entities.CreatePrescriptionPayload {
	status := entities.PrescriptionStatus(strings.TrimSpace(d.Status))
	if !status.Valid() {
		status = entities.StatusPending
	}
	return entities.CreatePrescriptionPayload{
		Patient:    positiveID(d.Patient),
		Medication: positiveID(d.Medication),
		DateDebut:  normalizeDate(d.DateDebut),
		DateFin:    normalizeDate(d.DateFin),
		Status:     status,
		Comment:    strings.TrimSpace(d.Comment),
	}
}

func positiveID(s string) int {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// FormSnapshot is a consistent copy of the form state for rendering
type FormSnapshot struct {
	State       LoadState
	Patients    []Option
	Medications []Option
	Statuses    []StatusOption
	Draft       FormDraft
	Error       string
	Success     bool
	Submitting  bool
}

// Usable reports whether the form can be filled and submitted
func (s FormSnapshot) Usable() bool {
	return s.State.IsReady()
}

// FormOption customizes a FormView
type FormOption func(*FormView)

// WithClock replaces time.Now, for the success indicator expiry
func WithClock(now func() time.Time) FormOption {
	return func(f *FormView) {
		if now != nil {
			f.now = now
		}
	}
}

// OnSuccess registers a callback run after each successful create
func OnSuccess(fn func(entities.Prescription)) FormOption {
	return func(f *FormView) {
		f.onSuccess = fn
	}
}

// FormView is the create-prescription form
type FormView struct {
	mu        sync.Mutex
	backend   Backend
	scope     scope
	now       func() time.Time
	onSuccess func(entities.Prescription)

	state       LoadState
	patients    []entities.Patient
	medications []entities.Medication
	draft       FormDraft
	submission  Submission
}

// NewFormView mounts a form view; ctx bounds every call it makes
func NewFormView(ctx context.Context, backend Backend, opts ...FormOption) *FormView {
	f := &FormView{
		backend: backend,
		scope:   newScope(ctx),
		now:     time.Now,
		state:   Loading(),
		draft:   DefaultDraft(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Unmount cancels in-flight calls; later results are discarded
func (f *FormView) Unmount() {
	f.scope.cancel()
}

// Load fetches patients and medications concurrently; either failure fails the form
func (f *FormView) Load() error {
	if !f.scope.alive() {
		return ErrUnmounted
	}

	f.mu.Lock()
	f.state = Loading()
	f.mu.Unlock()

	var (
		patients    []entities.Patient
		medications []entities.Medication
	)
	g, ctx := errgroup.WithContext(f.scope.ctx)
	g.Go(func() error {
		var err error
		patients, err = f.backend.Patients.List(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		medications, err = f.backend.Medications.List(ctx)
		return err
	})
	err := g.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.scope.alive() {
		return ErrUnmounted
	}
	if err != nil {
		f.state = Failed(ErrorMessage(err, MsgLoadFailed))
		return err
	}
	f.patients = patients
	f.medications = medications
	f.state = Ready()
	return nil
}

// SetDraft replaces the form values and clears a previous error or success
func (f *FormView) SetDraft(d FormDraft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = d
	if !f.submission.InFlight() {
		f.submission = Submission{}
	}
}

func (f *FormView) Draft() FormDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Submit validates then creates the prescription. Validation failures make no call.
func (f *FormView) Submit() error {
	f.mu.Lock()
	if !f.state.IsReady() {
		f.mu.Unlock()
		return ErrNotReady
	}
	if f.submission.InFlight() {
		f.mu.Unlock()
		return ErrSubmitInProgress
	}
	if verr := f.draft.Validate(); verr != nil {
		f.submission = Submission{phase: SubmitFailed, message: verr.Message}
		f.mu.Unlock()
		return verr
	}
	payload := f.draft.Payload()
	f.submission = Submission{phase: SubmitInFlight}
	f.mu.Unlock()

	created, err := f.backend.Prescriptions.Create(f.scope.ctx, payload)

	f.mu.Lock()
	if !f.scope.alive() {
		f.submission = Submission{}
		f.mu.Unlock()
		return ErrUnmounted
	}
	if err != nil {
		f.submission = Submission{phase: SubmitFailed, message: ErrorMessage(err, MsgCreateFailed)}
		f.mu.Unlock()
		return err
	}
	f.draft = DefaultDraft()
	f.submission = Submission{phase: SubmitSucceeded, until: f.now().Add(SuccessDisplay)}
	onSuccess := f.onSuccess
	f.mu.Unlock()

	if onSuccess != nil {
		onSuccess(created)
	}
	return nil
}

// Submission returns the current submission state
func (f *FormView) Submission() Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submission
}

// Snapshot returns the current state for rendering
func (f *FormView) Snapshot() FormSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := FormSnapshot{
		State:       f.state,
		Patients:    patientOptions(f.patients),
		Medications: medicationOptions(f.medications),
		Statuses:    StatusOptions(),
		Draft:       f.draft,
		Success:     f.submission.SuccessVisible(f.now()),
		Submitting:  f.submission.InFlight(),
	}
	if f.state.IsFailed() {
		snap.Error = f.state.Message()
	} else {
		snap.Error = f.submission.Error()
	}
	return snap
}
