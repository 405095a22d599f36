package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/giygas/prescriptions-web/entities"
	"github.com/giygas/prescriptions-web/interfaces"
)

const (
	patientResource      = "Patient"
	medicationResource   = "Medication"
	prescriptionResource = "Prescription"
)

// Compile-time checks
var (
	_ interfaces.PatientAPI      = (*PatientService)(nil)
	_ interfaces.MedicationAPI   = (*MedicationService)(nil)
	_ interfaces.PrescriptionAPI = (*PrescriptionService)(nil)
	_ interfaces.Pinger          = (*Client)(nil)
)

// PatientService is the read-only /Patient resource
type PatientService struct {
	client *Client
}

func (s *PatientService) List(ctx context.Context) ([]entities.Patient, error) {
	var out []entities.Patient
	if err := s.client.do(ctx, http.MethodGet, "/"+patientResource, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PatientService) Get(ctx context.Context, id int) (entities.Patient, error) {
	var out entities.Patient
	err := s.client.do(ctx, http.MethodGet, itemPath(patientResource, id), nil, nil, &out)
	return out, err
}

// MedicationService is the read-only /Medication resource
type MedicationService struct {
	client *Client
}

func (s *MedicationService) List(ctx context.Context) ([]entities.Medication, error) {
	var out []entities.Medication
	if err := s.client.do(ctx, http.MethodGet, "/"+medicationResource, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MedicationService) Get(ctx context.Context, id int) (entities.Medication, error) {
	var out entities.Medication
	err := s.client.do(ctx, http.MethodGet, itemPath(medicationResource, id), nil, nil, &out)
	return out, err
}

// PrescriptionService is the /Prescription resource
type PrescriptionService struct {
	client *Client
}

// List returns the prescriptions matching filters; absent filters are not sent
func (s *PrescriptionService) List(ctx context.Context, filters entities.PrescriptionFilters) ([]entities.Prescription, error) {
	var out []entities.Prescription
	if err := s.client.do(ctx, http.MethodGet, "/"+prescriptionResource, FilterQuery(filters), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PrescriptionService) Get(ctx context.Context, id int) (entities.Prescription, error) {
	var out entities.Prescription
	err := s.client.do(ctx, http.MethodGet, itemPath(prescriptionResource, id), nil, nil, &out)
	return out, err
}

func (s *PrescriptionService) Create(ctx context.Context, payload entities.CreatePrescriptionPayload) (entities.Prescription, error) {
	var out entities.Prescription
	err := s.client.do(ctx, http.MethodPost, "/"+prescriptionResource, nil, payload, &out)
	return out, err
}

// Update sends a partial update (PATCH)
func (s *PrescriptionService) Update(ctx context.Context, id int, payload entities.UpdatePrescriptionPayload) (entities.Prescription, error) {
	var out entities.Prescription
	err := s.client.do(ctx, http.MethodPatch, itemPath(prescriptionResource, id), nil, payload, &out)
	return out, err
}

func (s *PrescriptionService) Delete(ctx context.Context, id int) error {
	return s.client.do(ctx, http.MethodDelete, itemPath(prescriptionResource, id), nil, nil, nil)
}

// FilterQuery translates filters into query parameters, keeping only the set fields
func FilterQuery(f entities.PrescriptionFilters) url.Values {
	q := url.Values{}
	if f.Patient > 0 {
		q.Set("patient", strconv.Itoa(f.Patient))
	}
	if f.Medication > 0 {
		q.Set("medication", strconv.Itoa(f.Medication))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	setIfPresent(q, "date_debut_from", f.DateDebutFrom)
	setIfPresent(q, "date_debut_to", f.DateDebutTo)
	setIfPresent(q, "date_fin_from", f.DateFinFrom)
	setIfPresent(q, "date_fin_to", f.DateFinTo)
	return q
}

func setIfPresent(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
