package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/giygas/prescriptions-web/entities"
	"github.com/giygas/prescriptions-web/metrics"
)

// recordedRequest captures what the fake API received
type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   string(body),
	})
	status, response := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}

func (f *fakeAPI) respond(status int, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.response = status, response
}

func (f *fakeAPI) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("expected at least one request")
	}
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(ts.Close)

	c, err := New(ts.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	tests := []string{"", "localhost:8000", "ftp://example.com", "/relative"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			if _, err := New(raw); !errors.Is(err, ErrInvalidURL) {
				t.Errorf("expected ErrInvalidURL for %q, got %v", raw, err)
			}
		})
	}
}

func TestNewUsesFixedTimeout(t *testing.T) {
	c, err := New("http://localhost:8000", WithHTTPClient(&http.Client{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, c.httpClient.Timeout)
	}
	if c.BaseURL() != "http://localhost:8000" {
		t.Errorf("unexpected base url %q", c.BaseURL())
	}
}

func TestWithHTTPClientCopiesAndInstruments(t *testing.T) {
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
	hc := &http.Client{Transport: base}

	c, err := New("http://localhost:8000", WithHTTPClient(hc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if hc.Timeout != 0 {
		t.Errorf("expected caller's timeout untouched, got %v", hc.Timeout)
	}
	if _, ok := hc.Transport.(roundTripFunc); !ok {
		t.Errorf("expected caller's transport untouched, got %T", hc.Transport)
	}
	if c.httpClient == hc {
		t.Fatal("expected the client to use a copy")
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, c.httpClient.Timeout)
	}
	tr, ok := c.httpClient.Transport.(*metrics.Transport)
	if !ok {
		t.Fatalf("expected an instrumented transport, got %T", c.httpClient.Transport)
	}
	if _, ok := tr.Base.(roundTripFunc); !ok {
		t.Errorf("expected the caller's transport underneath, got %T", tr.Base)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping through the wrapped transport: %v", err)
	}
}

func TestFilterQueryOmitsAbsentFields(t *testing.T) {
	tests := []struct {
		name     string
		filters  entities.PrescriptionFilters
		expected string
	}{
		{"no filters", entities.PrescriptionFilters{}, ""},
		{"patient only", entities.PrescriptionFilters{Patient: 1}, "patient=1"},
		{"patient and status", entities.PrescriptionFilters{Patient: 1, Status: entities.StatusValid}, "patient=1&status=valide"},
		{"start range", entities.PrescriptionFilters{DateDebutFrom: "2024-01-01", DateDebutTo: "2024-06-30"}, "date_debut_from=2024-01-01&date_debut_to=2024-06-30"},
		{"end range", entities.PrescriptionFilters{DateFinFrom: "2024-01-01", DateFinTo: "2024-12-31"}, "date_fin_from=2024-01-01&date_fin_to=2024-12-31"},
		{
			"everything",
			entities.PrescriptionFilters{
				Patient: 2, Medication: 3, Status: entities.StatusPending,
				DateDebutFrom: "2024-01-01", DateDebutTo: "2024-02-01",
				DateFinFrom: "2024-03-01", DateFinTo: "2024-04-01",
			},
			"date_debut_from=2024-01-01&date_debut_to=2024-02-01&date_fin_from=2024-03-01&date_fin_to=2024-04-01&medication=3&patient=2&status=en_attente",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterQuery(tt.filters).Encode()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestPrescriptionListSendsOnlySetFilters(t *testing.T) {
	api := &fakeAPI{response: `[{"id":1,"patient":1,"medication":1,"date_debut":"2024-01-01","date_fin":"2024-12-31","status":"valide","comment":null}]`}
	c := newTestClient(t, api)

	got, err := c.Prescriptions.List(context.Background(), entities.PrescriptionFilters{Patient: 1, Status: entities.StatusValid})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Status != entities.StatusValid || got[0].Comment != nil {
		t.Errorf("unexpected prescriptions: %+v", got)
	}

	req := api.last(t)
	if req.Method != http.MethodGet || req.Path != "/Prescription" {
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	if len(req.Query) != 2 || req.Query.Get("patient") != "1" || req.Query.Get("status") != "valide" {
		t.Errorf("unexpected query %v", req.Query)
	}
	for _, key := range []string{"medication", "date_debut_from", "date_debut_to", "date_fin_from", "date_fin_to"} {
		if _, present := req.Query[key]; present {
			t.Errorf("absent filter %q must not be sent", key)
		}
	}
}

func TestPrescriptionCreate(t *testing.T) {
	api := &fakeAPI{status: http.StatusCreated, response: `{"id":7,"patient":1,"medication":1,"date_debut":"2024-01-01","date_fin":"2024-12-31","status":"en_attente","comment":null}`}
	c := newTestClient(t, api)

	p, err := c.Prescriptions.Create(context.Background(), entities.CreatePrescriptionPayload{
		Patient: 1, Medication: 1, DateDebut: "2024-01-01", DateFin: "2024-12-31", Status: entities.StatusPending,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID != 7 {
		t.Errorf("expected id 7, got %d", p.ID)
	}

	req := api.last(t)
	if req.Method != http.MethodPost || req.Path != "/Prescription" {
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(req.Body), &sent); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if sent["status"] != "en_attente" || sent["date_debut"] != "2024-01-01" || sent["date_fin"] != "2024-12-31" {
		t.Errorf("unexpected body %v", sent)
	}
	if _, ok := sent["comment"]; ok {
		t.Errorf("empty comment should be omitted, got %v", sent)
	}
}

func TestPrescriptionGetUpdateDelete(t *testing.T) {
	api := &fakeAPI{response: `{"id":3,"patient":1,"medication":2,"date_debut":"2024-01-01","date_fin":"2024-02-01","status":"valide"}`}
	c := newTestClient(t, api)
	ctx := context.Background()

	if _, err := c.Prescriptions.Get(ctx, 3); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if req := api.last(t); req.Method != http.MethodGet || req.Path != "/Prescription/3" {
		t.Errorf("unexpected get request %s %s", req.Method, req.Path)
	}

	status := entities.StatusValid
	if _, err := c.Prescriptions.Update(ctx, 3, entities.UpdatePrescriptionPayload{Status: &status}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	req := api.last(t)
	if req.Method != http.MethodPatch || req.Path != "/Prescription/3" {
		t.Errorf("unexpected update request %s %s", req.Method, req.Path)
	}
	if req.Body != `{"status":"valide"}` {
		t.Errorf("partial update should only carry set fields, got %s", req.Body)
	}

	api.respond(http.StatusNoContent, "")
	if err := c.Prescriptions.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	req = api.last(t)
	if req.Method != http.MethodDelete || req.Path != "/Prescription/3" || req.Body != "" {
		t.Errorf("unexpected delete request %s %s body=%q", req.Method, req.Path, req.Body)
	}
}

func TestReferenceResources(t *testing.T) {
	api := &fakeAPI{response: `[{"id":1,"first_name":"John","last_name":"Doe","birth_date":null}]`}
	c := newTestClient(t, api)
	ctx := context.Background()

	patients, err := c.Patients.List(ctx)
	if err != nil {
		t.Fatalf("Patients.List: %v", err)
	}
	if len(patients) != 1 || patients[0].FullName() != "John Doe" {
		t.Errorf("unexpected patients %+v", patients)
	}
	if req := api.last(t); req.Path != "/Patient" {
		t.Errorf("unexpected path %s", req.Path)
	}

	api.respond(http.StatusOK, `{"id":1,"code":"ASP","label":"Aspirin","status":"actif"}`)
	m, err := c.Medications.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Medications.Get: %v", err)
	}
	if m.Label != "Aspirin" || m.Status != entities.MedicationActive {
		t.Errorf("unexpected medication %+v", m)
	}
	if req := api.last(t); req.Path != "/Medication/1" {
		t.Errorf("unexpected path %s", req.Path)
	}
}

func TestNon2xxBecomesHTTPError(t *testing.T) {
	api := &fakeAPI{status: http.StatusNotFound, response: `{"detail":"Not found."}`}
	c := newTestClient(t, api)

	_, err := c.Prescriptions.Get(context.Background(), 999)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T %v", err, err)
	}
	if httpErr.StatusCode != http.StatusNotFound || httpErr.Body != `{"detail":"Not found."}` {
		t.Errorf("unexpected error %+v", httpErr)
	}
	if err.Error() != "request failed with status code 404" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type failingTransport struct {
	err error
}

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, f.err
}

func TestTransportErrorIsPropagated(t *testing.T) {
	underlying := errors.New("Network Error")
	c, err := New("http://api.invalid", WithTransport(failingTransport{err: underlying}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Patients.List(context.Background())
	if !errors.Is(err, underlying) {
		t.Fatalf("expected underlying error, got %v", err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Error("transport failures must not be turned into HTTPError")
	}
}

func TestPingUsesHead(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if req := api.last(t); req.Method != http.MethodHead || req.Path != "/Patient" {
		t.Errorf("unexpected ping request %s %s", req.Method, req.Path)
	}
}
