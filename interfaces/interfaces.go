// Package interfaces defines core abstractions for the prescriptions front end
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"

	"github.com/giygas/prescriptions-web/entities"
)

// PatientAPI is the read-only Patient resource
type PatientAPI interface {
	List(ctx context.Context) ([]entities.Patient, error)
	Get(ctx context.Context, id int) (entities.Patient, error)
}

// MedicationAPI is the read-only Medication resource
type MedicationAPI interface {
	List(ctx context.Context) ([]entities.Medication, error)
	Get(ctx context.Context, id int) (entities.Medication, error)
}

// PrescriptionAPI is the Prescription resource.
// List must omit absent filter fields from the request.
type PrescriptionAPI interface {
	List(ctx context.Context, filters entities.PrescriptionFilters) ([]entities.Prescription, error)
	Get(ctx context.Context, id int) (entities.Prescription, error)
	Create(ctx context.Context, payload entities.CreatePrescriptionPayload) (entities.Prescription, error)
	Update(ctx context.Context, id int, payload entities.UpdatePrescriptionPayload) (entities.Prescription, error)
	Delete(ctx context.Context, id int) error
}

// Pinger checks that the upstream API answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// Probe checks upstream reachability and records the outcome
	Probe(ctx context.Context) error

	// HealthCheck returns the current status, details and HTTP status code
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// Scheduler defines the contract for background jobs.
type Scheduler interface {
	Start() error
	Stop()
}

// Sweeper drops idle entries and reports how many are left
type Sweeper interface {
	Sweep() (remaining int)
}
