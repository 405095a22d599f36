// Package handlers renders the prescription views as HTML pages.
// Handlers drive the session's Shell; the views do the API calls.
package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/prescriptions-web/interfaces"
	"github.com/giygas/prescriptions-web/logging"
	"github.com/giygas/prescriptions-web/session"
	"github.com/giygas/prescriptions-web/views"
)

// MsgSubmitBusy is shown when a second create arrives while one is running
const MsgSubmitBusy = "Une création de prescription est déjà en cours"

// Handler serves every page. Requests must go through session.Store.Middleware.
type Handler struct {
	backend views.Backend
	health  interfaces.HealthChecker
	pages   map[string]*template.Template
	now     func() time.Time
}

// New parses the embedded templates
func New(backend views.Backend, health interfaces.HealthChecker) (*Handler, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Handler{
		backend: backend,
		health:  health,
		pages:   pages,
		now:     time.Now,
	}, nil
}

// Routes mounts the pages on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Home)
	r.Get("/prescriptions", h.ListPrescriptions)
	r.Get("/prescriptions/new", h.NewPrescription)
	r.Post("/prescriptions/new", h.CreatePrescription)
	r.Get("/prescriptions/{id}/delete", h.ConfirmDelete)
	r.Post("/prescriptions/{id}/delete", h.DeletePrescription)
}

// Static serves the embedded stylesheet under /static/
func (h *Handler) Static() http.Handler {
	return staticHandler()
}

// Home redirects to the active tab
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	target := "/prescriptions"
	if s := session.FromContext(r.Context()); s != nil && s.Shell.Active() == views.TabCreate {
		target = "/prescriptions/new"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// ListPrescriptions shows the list. apply=1 applies the filters in the query,
// reset=1 clears them; otherwise the list reloads only when the refresh token moved.
func (h *Handler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	list := s.Shell.List()
	q := r.URL.Query()

	var err error
	switch {
	case q.Get("reset") == "1":
		err = list.ResetFilters()
	case q.Get("apply") == "1":
		list.SetDraft(filterDraftFrom(q))
		err = list.ApplyFilters()
	default:
		err = list.Sync(s.Shell.RefreshToken())
	}
	h.renderList(w, s, list, err)
}

// DeletePrescription deletes when confirm=yes; any other answer only redisplays the list.
// The filters travel in hidden fields so the list comes back as it was.
func (h *Handler) DeletePrescription(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	list := s.Shell.List()
	filters := filterDraftFrom(r.PostForm)

	var err error
	if r.PostForm.Get("confirm") == "yes" {
		// Delete reloads with these filters afterwards
		list.UseFilters(filters)
		err = list.Delete(id, func(int) bool { return true })
		if err == nil {
			logging.Info("Prescription deleted", "id", id)
		}
	} else {
		list.SetDraft(filters)
		if list.Applied() != filters {
			err = list.ApplyFilters()
		} else {
			err = list.Sync(s.Shell.RefreshToken())
		}
	}
	h.renderList(w, s, list, err)
}

func (h *Handler) renderList(w http.ResponseWriter, s *session.Session, list *views.ListView, err error) {
	snap := list.Snapshot()

	status := http.StatusOK
	if snap.State.IsFailed() || (err != nil && snap.Notice != "") {
		status = http.StatusBadGateway
	}
	if err != nil && !errors.Is(err, views.ErrSuperseded) {
		logging.Warn("List view error", "error", err)
	}

	h.render(w, status, "list", pageData{
		Title:       "Liste des prescriptions",
		Active:      views.TabList,
		Flash:       s.Flash(h.now()),
		List:        &snap,
		FilterQuery: template.URL(filterQuery(snap.Applied).Encode()),
	})
}

// ConfirmDelete asks before deleting, showing the prescription with its names resolved
func (h *Handler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	id, ok := prescriptionID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	data := &confirmData{Filters: filterDraftFrom(r.URL.Query())}
	status := http.StatusOK

	p, err := h.backend.Prescriptions.Get(ctx, id)
	if err != nil {
		data.Error = views.ErrorMessage(err, views.MsgLoadFailed)
		status = http.StatusBadGateway
	} else {
		data.Row = views.Row{
			ID:              p.ID,
			PatientName:     views.UnknownLabel,
			MedicationLabel: views.UnknownLabel,
			DateDebut:       views.FormatDate(p.DateDebut),
			DateFin:         views.FormatDate(p.DateFin),
			Status:          views.BadgeFor(p.Status),
		}
		if pt, err := h.backend.Patients.Get(ctx, p.Patient); err == nil {
			data.Row.PatientName = pt.FullName()
		}
		if m, err := h.backend.Medications.Get(ctx, p.Medication); err == nil {
			data.Row.MedicationLabel = m.Label
		}
	}

	h.render(w, status, "confirm", pageData{
		Title:   "Supprimer la prescription",
		Active:  s.Shell.Active(),
		Confirm: data,
	})
}

// NewPrescription shows the create form, loading reference data when needed
func (h *Handler) NewPrescription(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	form := s.Shell.Form()
	if !form.Snapshot().Usable() {
		if err := form.Load(); err != nil {
			logging.Warn("Form view failed to load", "error", err)
		}
	}
	h.renderForm(w, s, form, http.StatusOK)
}

// CreatePrescription submits the form. 303 to the list on success, 422 on a
// validation error, 409 while another create runs, 502 when the API fails.
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form := s.Shell.Form()
	draft := formDraftFrom(r.PostForm)

	if !s.TryBeginSubmit() {
		form.SetDraft(draft)
		h.renderFormError(w, s, form, http.StatusConflict, MsgSubmitBusy)
		return
	}
	defer s.EndSubmit()

	if !form.Snapshot().Usable() {
		if err := form.Load(); err != nil {
			h.renderForm(w, s, form, http.StatusBadGateway)
			return
		}
	}

	form.SetDraft(draft)
	err := form.Submit()

	var verr *views.ValidationError
	switch {
	case err == nil:
		s.SetFlash(views.MsgCreated, h.now().Add(views.SuccessDisplay))
		logging.Info("Prescription created", "patient", draft.Patient, "medication", draft.Medication)
		http.Redirect(w, r, "/prescriptions", http.StatusSeeOther)
	case errors.As(err, &verr):
		h.renderForm(w, s, form, http.StatusUnprocessableEntity)
	case errors.Is(err, views.ErrSubmitInProgress):
		h.renderFormError(w, s, form, http.StatusConflict, MsgSubmitBusy)
	default:
		logging.Warn("Prescription create failed", "error", err)
		h.renderForm(w, s, form, http.StatusBadGateway)
	}
}

func (h *Handler) renderForm(w http.ResponseWriter, s *session.Session, form *views.FormView, status int) {
	snap := form.Snapshot()
	if snap.State.IsFailed() && status == http.StatusOK {
		status = http.StatusBadGateway
	}
	h.render(w, status, "form", pageData{
		Title:  "Nouvelle prescription",
		Active: views.TabCreate,
		Flash:  s.Flash(h.now()),
		Form:   &snap,
	})
}

func (h *Handler) renderFormError(w http.ResponseWriter, s *session.Session, form *views.FormView, status int, msg string) {
	snap := form.Snapshot()
	snap.Error = msg
	h.render(w, status, "form", pageData{
		Title:  "Nouvelle prescription",
		Active: views.TabCreate,
		Form:   &snap,
	})
}

// Health reports the last probe of the prescriptions API
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, data, code := h.health.HealthCheck()
	body := map[string]any{"status": status}
	for k, v := range data {
		body[k] = v
	}
	RespondWithJSON(w, code, body)
}

func mustSession(w http.ResponseWriter, r *http.Request) *session.Session {
	s := session.FromContext(r.Context())
	if s == nil {
		logging.Error("Request reached a page handler without a session", "path", r.URL.Path)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	return s
}

func prescriptionID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid prescription id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func filterDraftFrom(v url.Values) views.FilterDraft {
	return views.FilterDraft{
		Patient:    v.Get("patient"),
		Medication: v.Get("medication"),
		Status:     v.Get("status"),
		DateFrom:   v.Get("date_from"),
		DateTo:     v.Get("date_to"),
		Query:      v.Get("q"),
	}
}

// filterQuery is the inverse of filterDraftFrom, keeping only set fields
func filterQuery(d views.FilterDraft) url.Values {
	v := url.Values{}
	for key, value := range map[string]string{
		"patient":    d.Patient,
		"medication": d.Medication,
		"status":     d.Status,
		"date_from":  d.DateFrom,
		"date_to":    d.DateTo,
		"q":          d.Query,
	} {
		if value != "" {
			v.Set(key, value)
		}
	}
	return v
}

func formDraftFrom(v url.Values) views.FormDraft {
	return views.FormDraft{
		Patient:    v.Get("patient"),
		Medication: v.Get("medication"),
		DateDebut:  v.Get("date_debut"),
		DateFin:    v.Get("date_fin"),
		Status:     v.Get("status"),
		Comment:    v.Get("comment"),
	}
}
