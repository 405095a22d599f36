package views

import (
	"context"
	"errors"
	"testing"

	"github.com/giygas/prescriptions-web/entities"
	"github.com/giygas/prescriptions-web/testutil"
)

func loadedList(t *testing.T, api *testutil.FakeAPI) *ListView {
	t.Helper()
	l := NewListView(context.Background(), backendOf(api))
	t.Cleanup(l.Unmount)
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return l
}

func TestListLoadFetchesSequentially(t *testing.T) {
	api := testutil.Seeded()
	l := loadedList(t, api)

	calls := api.Calls("")
	expected := []string{testutil.PatientsList, testutil.MedicationsList, testutil.PrescriptionsList}
	if len(calls) != len(expected) {
		t.Fatalf("Expected %d calls, got %+v", len(expected), calls)
	}
	for i, method := range expected {
		if calls[i].Method != method {
			t.Errorf("Call %d: expected %s, got %s", i, method, calls[i].Method)
		}
	}

	snap := l.Snapshot()
	if !snap.State.IsReady() {
		t.Fatalf("Expected ready, got %v", snap.State)
	}
	if len(snap.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(snap.Rows))
	}
	row := snap.Rows[0]
	if row.PatientName != "John Doe" || row.MedicationLabel != "Aspirin" {
		t.Errorf("Unexpected lookups %+v", row)
	}
	if row.DateDebut != "01/01/2024" || row.DateFin != "31/12/2024" {
		t.Errorf("Unexpected dates %+v", row)
	}
	if row.Status.Label != "Valide" || row.Comment != "-" {
		t.Errorf("Unexpected status or comment %+v", row)
	}
}

func TestListUnknownIDsRenderInconnu(t *testing.T) {
	comment := "à jeun"
	api := testutil.NewFakeAPI(nil, nil, []entities.Prescription{
		{ID: 5, Patient: 42, Medication: 43, DateDebut: "2024-01-01", DateFin: "2024-01-31", Status: entities.StatusPending, Comment: &comment},
	})
	snap := loadedList(t, api).Snapshot()

	if len(snap.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(snap.Rows))
	}
	row := snap.Rows[0]
	if row.PatientName != UnknownLabel || row.MedicationLabel != UnknownLabel {
		t.Errorf("Expected %q for unknown ids, got %+v", UnknownLabel, row)
	}
	if row.Comment != comment {
		t.Errorf("Expected comment %q, got %q", comment, row.Comment)
	}
}

func TestListFailedFetchSurfacesMessageVerbatim(t *testing.T) {
	api := testutil.Seeded()
	api.Fail(testutil.PatientsList, errors.New("Network Error"))

	l := NewListView(context.Background(), backendOf(api))
	defer l.Unmount()

	if err := l.Load(); err == nil {
		t.Fatal("Expected load error")
	}
	snap := l.Snapshot()
	if !snap.State.IsFailed() || snap.State.Message() != "Network Error" {
		t.Errorf("Expected failed state with verbatim message, got %v %q", snap.State, snap.State.Message())
	}
	if snap.Empty() {
		t.Error("A failed load must not look like an empty list")
	}
	if n := len(api.Calls(testutil.PrescriptionsList)); n != 0 {
		t.Errorf("Expected no prescriptions fetch after a failure, got %d", n)
	}
}

func TestListEmptyState(t *testing.T) {
	api := testutil.NewFakeAPI(nil, nil, nil)
	snap := loadedList(t, api).Snapshot()

	if !snap.Empty() {
		t.Error("Expected empty state")
	}
	if len(snap.Rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(snap.Rows))
	}
}

func TestListDraftDoesNotRefetch(t *testing.T) {
	api := testutil.Seeded()
	l := loadedList(t, api)

	l.SetDraft(FilterDraft{Patient: "1", Status: "valide"})
	if n := len(api.Calls("")); n != 3 {
		t.Errorf("Expected editing the draft to make no calls, got %d calls total", n)
	}
	if l.Draft().Patient != "1" {
		t.Errorf("Expected draft to be kept, got %+v", l.Draft())
	}
}

func TestListApplyAndResetFilters(t *testing.T) {
	api := testutil.Seeded()
	l := loadedList(t, api)

	l.SetDraft(FilterDraft{Patient: "1", Status: "en_attente", DateFrom: "2024-01-01", DateTo: "not-a-date"})
	if err := l.ApplyFilters(); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}

	calls := api.Calls(testutil.PrescriptionsList)
	got := calls[len(calls)-1].Filters
	expected := entities.PrescriptionFilters{Patient: 1, Status: entities.StatusPending, DateDebutFrom: "2024-01-01"}
	if got != expected {
		t.Errorf("Expected filters %+v, got %+v", expected, got)
	}
	if !l.Snapshot().Empty() {
		t.Error("Expected no en_attente prescriptions")
	}

	if err := l.ResetFilters(); err != nil {
		t.Fatalf("ResetFilters: %v", err)
	}
	calls = api.Calls(testutil.PrescriptionsList)
	if f := calls[len(calls)-1].Filters; !f.IsZero() {
		t.Errorf("Expected unfiltered reload, got %+v", f)
	}
	snap := l.Snapshot()
	if snap.Draft != (FilterDraft{}) || len(snap.Rows) != 1 {
		t.Errorf("Expected cleared draft and full list, got %+v", snap)
	}
}

func TestListQueryFiltersRowsClientSide(t *testing.T) {
	api := testutil.NewFakeAPI(
		[]entities.Patient{{ID: 1, FirstName: "Hélène", LastName: "Dupont"}, {ID: 2, FirstName: "John", LastName: "Doe"}},
		[]entities.Medication{{ID: 1, Label: "Aspirin"}},
		[]entities.Prescription{
			{ID: 1, Patient: 1, Medication: 1, DateDebut: "2024-01-01", DateFin: "2024-02-01", Status: entities.StatusValid},
			{ID: 2, Patient: 2, Medication: 1, DateDebut: "2024-01-01", DateFin: "2024-02-01", Status: entities.StatusValid},
		},
	)
	l := loadedList(t, api)

	l.SetDraft(FilterDraft{Query: "helene"})
	if err := l.ApplyFilters(); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}

	calls := api.Calls(testutil.PrescriptionsList)
	if f := calls[len(calls)-1].Filters; !f.IsZero() {
		t.Errorf("Free-text query must not reach the API, got %+v", f)
	}
	snap := l.Snapshot()
	if len(snap.Rows) != 1 || snap.Rows[0].ID != 1 {
		t.Errorf("Expected only Hélène's prescription, got %+v", snap.Rows)
	}
}

func TestListDelete(t *testing.T) {
	t.Run("denied makes no call", func(t *testing.T) {
		api := testutil.Seeded()
		l := loadedList(t, api)

		if err := l.Delete(1, func(int) bool { return false }); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if n := len(api.Calls(testutil.PrescriptionsDelete)); n != 0 {
			t.Errorf("Expected no delete call, got %d", n)
		}
		if n := len(api.Calls(testutil.PrescriptionsList)); n != 1 {
			t.Errorf("Expected no reload, got %d list calls", n)
		}
	})

	t.Run("granted deletes once then reloads", func(t *testing.T) {
		api := testutil.Seeded()
		l := loadedList(t, api)

		var asked int
		if err := l.Delete(1, func(id int) bool { asked = id; return true }); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if asked != 1 {
			t.Errorf("Expected confirmation for id 1, got %d", asked)
		}
		calls := api.Calls(testutil.PrescriptionsDelete)
		if len(calls) != 1 || calls[0].ID != 1 {
			t.Errorf("Expected one delete for id 1, got %+v", calls)
		}
		if n := len(api.Calls(testutil.PrescriptionsList)); n != 2 {
			t.Errorf("Expected a reload after delete, got %d list calls", n)
		}
		if !l.Snapshot().Empty() {
			t.Error("Expected empty list after delete")
		}
	})

	t.Run("failure keeps the list and shows the message", func(t *testing.T) {
		api := testutil.Seeded()
		api.Fail(testutil.PrescriptionsDelete, errors.New("request failed with status code 500"))
		l := loadedList(t, api)

		if err := l.Delete(1, func(int) bool { return true }); err == nil {
			t.Fatal("Expected delete error")
		}
		snap := l.Snapshot()
		if snap.Notice != "request failed with status code 500" {
			t.Errorf("Expected notice, got %q", snap.Notice)
		}
		if !snap.State.IsReady() || len(snap.Rows) != 1 {
			t.Errorf("Expected list unchanged, got %v with %d rows", snap.State, len(snap.Rows))
		}
	})

	t.Run("runs even when the list failed to load", func(t *testing.T) {
		api := testutil.Seeded()
		l := NewListView(context.Background(), backendOf(api))
		t.Cleanup(l.Unmount)
		api.Fail(testutil.PatientsList, errors.New("Network Error"))
		if err := l.Load(); err == nil {
			t.Fatal("Expected load error")
		}

		if err := l.Delete(1, func(int) bool { return true }); err == nil {
			t.Fatal("Expected the reload error")
		}
		if n := len(api.Calls(testutil.PrescriptionsDelete)); n != 1 {
			t.Fatalf("Expected one delete call, got %d", n)
		}
		if n := len(api.Prescriptions()); n != 0 {
			t.Errorf("Expected prescription removed, %d left", n)
		}
		if snap := l.Snapshot(); !snap.State.IsFailed() {
			t.Errorf("Expected failed state from the reload, got %v", snap.State)
		}
	})

	t.Run("failure on a stale list refetches before the notice", func(t *testing.T) {
		api := testutil.Seeded()
		api.Fail(testutil.PrescriptionsDelete, errors.New("request failed with status code 500"))
		l := loadedList(t, api)
		l.UseFilters(FilterDraft{Status: string(entities.StatusValid)})

		if err := l.Delete(1, func(int) bool { return true }); err == nil {
			t.Fatal("Expected delete error")
		}
		calls := api.Calls(testutil.PrescriptionsList)
		if len(calls) != 2 || calls[1].Filters.Status != entities.StatusValid {
			t.Fatalf("Expected one filtered reload, got %+v", calls)
		}
		snap := l.Snapshot()
		if snap.Notice != "request failed with status code 500" {
			t.Errorf("Expected notice to survive the reload, got %q", snap.Notice)
		}
	})
}

func TestListUseFiltersDoesNotFetch(t *testing.T) {
	api := testutil.Seeded()
	l := loadedList(t, api)

	f := FilterDraft{Status: string(entities.StatusValid)}
	l.UseFilters(f)
	if l.Applied() != f || l.Draft() != f {
		t.Errorf("Expected draft and applied %+v, got %+v / %+v", f, l.Draft(), l.Applied())
	}
	if n := len(api.Calls(testutil.PrescriptionsList)); n != 1 {
		t.Errorf("Expected no fetch, got %d list calls", n)
	}

	if err := l.Sync(0); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n := len(api.Calls(testutil.PrescriptionsList)); n != 2 {
		t.Errorf("Expected Sync to fetch with the new filters, got %d list calls", n)
	}
}

func TestListSyncRetriesAfterFailure(t *testing.T) {
	api := testutil.Seeded()
	api.Fail(testutil.PrescriptionsList, errors.New("Network Error"))
	l := NewListView(context.Background(), backendOf(api))
	defer l.Unmount()

	if err := l.Sync(0); err == nil {
		t.Fatal("Expected the first sync to fail")
	}
	api.Fail(testutil.PrescriptionsList, nil)

	if err := l.Sync(0); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n := len(api.Calls(testutil.PrescriptionsList)); n != 2 {
		t.Errorf("Expected a refetch after failure, got %d list calls", n)
	}
	if snap := l.Snapshot(); !snap.State.IsReady() || len(snap.Rows) != 1 {
		t.Errorf("Expected ready with 1 row, got %v", snap.State)
	}
}

func TestListNoticeClearedBySync(t *testing.T) {
	api := testutil.Seeded()
	api.Fail(testutil.PrescriptionsDelete, errors.New("request failed with status code 500"))
	l := loadedList(t, api)

	if err := l.Delete(1, func(int) bool { return true }); err == nil {
		t.Fatal("Expected delete error")
	}
	if l.Snapshot().Notice == "" {
		t.Fatal("Expected a notice after the failed delete")
	}

	if err := l.Sync(0); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := l.Snapshot().Notice; got != "" {
		t.Errorf("Expected notice cleared, got %q", got)
	}
	if n := len(api.Calls(testutil.PrescriptionsList)); n != 1 {
		t.Errorf("Expected no refetch for an up to date list, got %d list calls", n)
	}
}

func TestListLatestLoadWins(t *testing.T) {
	api := testutil.Seeded()
	started, release := make(chan struct{}), make(chan struct{})
	api.Hook = blockOn(testutil.PrescriptionsList, 1, started, release)

	l := NewListView(context.Background(), backendOf(api))
	defer l.Unmount()

	first := make(chan error, 1)
	go func() { first <- l.Load() }()
	<-started

	l.SetDraft(FilterDraft{Status: "en_attente"})
	if err := l.ApplyFilters(); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}

	close(release)
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Expected ErrSuperseded, got %v", err)
	}
	if !l.Snapshot().Empty() {
		t.Error("Stale unfiltered results must not overwrite the newer load")
	}
}

func TestListResultsAfterUnmountAreDiscarded(t *testing.T) {
	api := testutil.Seeded()
	started, release := make(chan struct{}), make(chan struct{})
	api.Hook = blockOn(testutil.PatientsList, 1, started, release)
	defer close(release)

	l := NewListView(context.Background(), backendOf(api))
	done := make(chan error, 1)
	go func() { done <- l.Load() }()
	<-started

	l.Unmount()
	if err := <-done; !errors.Is(err, ErrUnmounted) {
		t.Fatalf("Expected ErrUnmounted, got %v", err)
	}
	if !l.Snapshot().State.IsLoading() {
		t.Error("Expected no state update after unmount")
	}
	if err := l.Load(); !errors.Is(err, ErrUnmounted) {
		t.Errorf("Expected ErrUnmounted for a load after unmount, got %v", err)
	}
}

func TestListSyncFollowsRefreshToken(t *testing.T) {
	api := testutil.Seeded()
	l := NewListView(context.Background(), backendOf(api))
	defer l.Unmount()

	steps := []struct {
		token uint64
		loads int
	}{
		{0, 1},
		{0, 1},
		{1, 2},
		{1, 2},
		{2, 3},
	}
	for _, s := range steps {
		if err := l.Sync(s.token); err != nil {
			t.Fatalf("Sync(%d): %v", s.token, err)
		}
		if n := len(api.Calls(testutil.PrescriptionsList)); n != s.loads {
			t.Errorf("After Sync(%d): expected %d loads, got %d", s.token, s.loads, n)
		}
	}
}

func TestFilterDraftDropsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		draft    FilterDraft
		expected entities.PrescriptionFilters
	}{
		{"empty", FilterDraft{}, entities.PrescriptionFilters{}},
		{"non numeric ids", FilterDraft{Patient: "abc", Medication: "-2"}, entities.PrescriptionFilters{}},
		{"unknown status", FilterDraft{Status: "archived"}, entities.PrescriptionFilters{}},
		{"dates", FilterDraft{DateFrom: "2024-01-01", DateTo: "2024-06-30"}, entities.PrescriptionFilters{DateDebutFrom: "2024-01-01", DateDebutTo: "2024-06-30"}},
		{"all", FilterDraft{Patient: "3", Medication: "4", Status: "suppr"}, entities.PrescriptionFilters{Patient: 3, Medication: 4, Status: entities.StatusDeleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.draft.Filters(); got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}
