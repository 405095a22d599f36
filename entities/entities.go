// Package entities holds the resource shapes exchanged with the prescriptions REST API.
package entities

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used by the API for date_debut/date_fin
const DateLayout = "2006-01-02"

// MedicationStatus is the lifecycle status of a medication
type MedicationStatus string

const (
	MedicationActive  MedicationStatus = "actif"
	MedicationDeleted MedicationStatus = "suppr"
)

// PrescriptionStatus is the lifecycle status of a prescription
type PrescriptionStatus string

const (
	StatusValid   PrescriptionStatus = "valide"
	StatusPending PrescriptionStatus = "en_attente"
	StatusDeleted PrescriptionStatus = "suppr"
)

// PrescriptionStatuses lists the statuses in display order
var PrescriptionStatuses = []PrescriptionStatus{StatusValid, StatusPending, StatusDeleted}

// Valid reports whether s is one of the known prescription statuses
func (s PrescriptionStatus) Valid() bool {
	for _, known := range PrescriptionStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Patient is read-only reference data
type Patient struct {
	ID        int     `json:"id"`
	LastName  string  `json:"last_name"`
	FirstName string  `json:"first_name"`
	BirthDate *string `json:"birth_date"`
}

// FullName returns "first last", the form used in tables and dropdowns
func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Medication is read-only reference data
type Medication struct {
	ID     int              `json:"id"`
	Code   string           `json:"code"`
	Label  string           `json:"label"`
	Status MedicationStatus `json:"status"`
}

// Prescription links a patient and a medication over a date range.
// Patient and Medication are ids, the API never embeds the objects.
type Prescription struct {
	ID         int                `json:"id"`
	Patient    int                `json:"patient"`
	Medication int                `json:"medication"`
	DateDebut  string             `json:"date_debut"`
	DateFin    string             `json:"date_fin"`
	Status     PrescriptionStatus `json:"status"`
	Comment    *string            `json:"comment"`
}

// PrescriptionFilters narrows a prescription list query.
// A zero field is absent and must not be sent.
type PrescriptionFilters struct {
	Patient       int
	Medication    int
	Status        PrescriptionStatus
	DateDebutFrom string
	DateDebutTo   string
	DateFinFrom   string
	DateFinTo     string
}

// IsZero reports whether no filter is set
func (f PrescriptionFilters) IsZero() bool {
	return f == PrescriptionFilters{}
}

// CreatePrescriptionPayload is the POST /Prescription body
type CreatePrescriptionPayload struct {
	Patient    int                `json:"patient"`
	Medication int                `json:"medication"`
	DateDebut  string             `json:"date_debut"`
	DateFin    string             `json:"date_fin"`
	Status     PrescriptionStatus `json:"status,omitempty"`
	Comment    string             `json:"comment,omitempty"`
}

// UpdatePrescriptionPayload is the PATCH /Prescription/{id} body; nil fields are left untouched
type UpdatePrescriptionPayload struct {
	Patient    *int                `json:"patient,omitempty"`
	Medication *int                `json:"medication,omitempty"`
	DateDebut  *string             `json:"date_debut,omitempty"`
	DateFin    *string             `json:"date_fin,omitempty"`
	Status     *PrescriptionStatus `json:"status,omitempty"`
	Comment    *string             `json:"comment,omitempty"`
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}
