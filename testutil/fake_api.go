// Package testutil provides an in-memory prescriptions API that records every call.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/giygas/prescriptions-web/entities"
	"github.com/giygas/prescriptions-web/interfaces"
)

// Method names recorded in Call.Method
const (
	PatientsList        = "patients.list"
	PatientsGet         = "patients.get"
	MedicationsList     = "medications.list"
	MedicationsGet      = "medications.get"
	PrescriptionsList   = "prescriptions.list"
	PrescriptionsGet    = "prescriptions.get"
	PrescriptionsCreate = "prescriptions.create"
	PrescriptionsUpdate = "prescriptions.update"
	PrescriptionsDelete = "prescriptions.delete"
	Ping                = "ping"
)

var ErrNotFound = errors.New("request failed with status code 404")

// Call is one recorded API call
type Call struct {
	Method  string
	ID      int
	Filters entities.PrescriptionFilters
	Create  entities.CreatePrescriptionPayload
	Update  entities.UpdatePrescriptionPayload
}

// FakeAPI is an in-memory API. Hook, when set, runs before every call and may
// block or fail it; seq is the 1-based count of calls to that method so far.
type FakeAPI struct {
	mu            sync.Mutex
	patients      []entities.Patient
	medications   []entities.Medication
	prescriptions []entities.Prescription
	errs          map[string]error
	calls         []Call
	counts        map[string]int
	nextID        int

	Hook func(ctx context.Context, method string, seq int) error
}

// NewFakeAPI returns a fake seeded with the given data
func NewFakeAPI(patients []entities.Patient, medications []entities.Medication, prescriptions []entities.Prescription) *FakeAPI {
	f := &FakeAPI{
		patients:      patients,
		medications:   medications,
		prescriptions: prescriptions,
		errs:          map[string]error{},
		counts:        map[string]int{},
		nextID:        1,
	}
	for _, p := range prescriptions {
		if p.ID >= f.nextID {
			f.nextID = p.ID + 1
		}
	}
	return f
}

// Seeded returns a fake with John Doe, Aspirin and one valid prescription
func Seeded() *FakeAPI {
	return NewFakeAPI(
		[]entities.Patient{{ID: 1, FirstName: "John", LastName: "Doe"}},
		[]entities.Medication{{ID: 1, Code: "ASP", Label: "Aspirin", Status: entities.MedicationActive}},
		[]entities.Prescription{{ID: 1, Patient: 1, Medication: 1, DateDebut: "2024-01-01", DateFin: "2024-12-31", Status: entities.StatusValid}},
	)
}

// Fail makes every call to method return err; nil clears it
func (f *FakeAPI) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// Calls returns the recorded calls, optionally only those to method
func (f *FakeAPI) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Prescriptions returns the current stored prescriptions
func (f *FakeAPI) Prescriptions() []entities.Prescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.Prescription(nil), f.prescriptions...)
}

func (f *FakeAPI) PatientAPI() interfaces.PatientAPI           { return fakePatients{f} }
func (f *FakeAPI) MedicationAPI() interfaces.MedicationAPI     { return fakeMedications{f} }
func (f *FakeAPI) PrescriptionAPI() interfaces.PrescriptionAPI { return fakePrescriptions{f} }

func (f *FakeAPI) Ping(ctx context.Context) error {
	return f.enter(ctx, Call{Method: Ping})
}

// enter records c, runs the hook and returns the configured error
func (f *FakeAPI) enter(ctx context.Context, c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.counts[c.Method]++
	seq := f.counts[c.Method]
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, c.Method, seq); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[c.Method]
}

type fakePatients struct{ f *FakeAPI }

func (p fakePatients) List(ctx context.Context) ([]entities.Patient, error) {
	if err := p.f.enter(ctx, Call{Method: PatientsList}); err != nil {
		return nil, err
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	return append([]entities.Patient(nil), p.f.patients...), nil
}

func (p fakePatients) Get(ctx context.Context, id int) (entities.Patient, error) {
	if err := p.f.enter(ctx, Call{Method: PatientsGet, ID: id}); err != nil {
		return entities.Patient{}, err
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	for _, pt := range p.f.patients {
		if pt.ID == id {
			return pt, nil
		}
	}
	return entities.Patient{}, ErrNotFound
}

type fakeMedications struct{ f *FakeAPI }

func (m fakeMedications) List(ctx context.Context) ([]entities.Medication, error) {
	if err := m.f.enter(ctx, Call{Method: MedicationsList}); err != nil {
		return nil, err
	}
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	return append([]entities.Medication(nil), m.f.medications...), nil
}

func (m fakeMedications) Get(ctx context.Context, id int) (entities.Medication, error) {
	if err := m.f.enter(ctx, Call{Method: MedicationsGet, ID: id}); err != nil {
		return entities.Medication{}, err
	}
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	for _, med := range m.f.medications {
		if med.ID == id {
			return med, nil
		}
	}
	return entities.Medication{}, ErrNotFound
}

type fakePrescriptions struct{ f *FakeAPI }

func (p fakePrescriptions) List(ctx context.Context, filters entities.PrescriptionFilters) ([]entities.Prescription, error) {
	if err := p.f.enter(ctx, Call{Method: PrescriptionsList, Filters: filters}); err != nil {
		return nil, err
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	var out []entities.Prescription
	for _, rx := range p.f.prescriptions {
		if filters.Patient != 0 && rx.Patient != filters.Patient {
			continue
		}
		if filters.Medication != 0 && rx.Medication != filters.Medication {
			continue
		}
		if filters.Status != "" && rx.Status != filters.Status {
			continue
		}
		if filters.DateDebutFrom != "" && rx.DateDebut < filters.DateDebutFrom {
			continue
		}
		if filters.DateDebutTo != "" && rx.DateDebut > filters.DateDebutTo {
			continue
		}
		out = append(out, rx)
	}
	return out, nil
}

func (p fakePrescriptions) Get(ctx context.Context, id int) (entities.Prescription, error) {
	if err := p.f.enter(ctx, Call{Method: PrescriptionsGet, ID: id}); err != nil {
		return entities.Prescription{}, err
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	for _, rx := range p.f.prescriptions {
		if rx.ID == id {
			return rx, nil
		}
	}
	return entities.Prescription{}, ErrNotFound
}

func (p fakePrescriptions) Create(ctx context.Context, payload entities.CreatePrescriptionPayload) (entities.Prescription, error) {
	if err := p.f.enter(ctx, Call{Method: PrescriptionsCreate, Create: payload}); err != nil {
		return entities.Prescription{}, err
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()

	rx := entities.Prescription{
		ID:         p.f.nextID,
		Patient:    payload.Patient,
		Medication: payload.Medication,
		DateDebut:  payload.DateDebut,
		DateFin:    payload.DateFin,
		Status:     payload.Status,
	}
	if rx.Status == "" {
		rx.Status = entities.StatusPending
	}
	if payload.Comment != "" {
		comment := payload.Comment
		rx.Comment = &comment
	}
	p.f.nextID++
	p.f.prescriptions = append(p.f.prescriptions, rx)
	return rx, nil
}

func (p fakePrescriptions) Update(ctx context.Context, id int, payload entities.UpdatePrescriptionPayload) (entities.Prescription, error) {
	if err := p.f.enter(ctx, Call{Method: PrescriptionsUpdate, ID: id, Update: payload}); err != nil {
		return entities.Prescription{}, err
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	for i := range p.f.prescriptions {
		rx := &p.f.prescriptions[i]
		if rx.ID != id {
			continue
		}
		if payload.Status != nil {
			rx.Status = *payload.Status
		}
		if payload.DateDebut != nil {
			rx.DateDebut = *payload.DateDebut
		}
		if payload.DateFin != nil {
			rx.DateFin = *payload.DateFin
		}
		if payload.Comment != nil {
			rx.Comment = payload.Comment
		}
		return *rx, nil
	}
	return entities.Prescription{}, ErrNotFound
}

func (p fakePrescriptions) Delete(ctx context.Context, id int) error {
	if err := p.f.enter(ctx, Call{Method: PrescriptionsDelete, ID: id}); err != nil {
		return err
	}
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	for i, rx := range p.f.prescriptions {
		if rx.ID == id {
			p.f.prescriptions = append(p.f.prescriptions[:i], p.f.prescriptions[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
