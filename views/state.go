// Package views holds the view-state machines behind the prescriptions pages:
// the List View, the Form View and the Shell that switches between them.
// Views perform their API calls through a Backend and never render HTML.
package views

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/giygas/prescriptions-web/interfaces"
)

// Fallback messages shown when an error carries no message of its own
const (
	MsgLoadFailed   = "Erreur lors du chargement des données"
	MsgDeleteFailed = "Erreur lors de la suppression"
	MsgCreateFailed = "Erreur lors de la création de la prescription"
)

var (
	// ErrUnmounted is returned when a result arrives after the view was unmounted
	ErrUnmounted = errors.New("view unmounted")

	// ErrSuperseded is returned when a newer load was triggered before this one finished
	ErrSuperseded = errors.New("load superseded by a newer one")

	// ErrNotReady is returned when submitting a form whose reference data is not loaded
	ErrNotReady = errors.New("form not ready")

	// ErrSubmitInProgress is returned when a submission is already in flight
	ErrSubmitInProgress = errors.New("submission already in progress")
)

// Backend bundles the three API resources a view may call
type Backend struct {
	Patients      interfaces.PatientAPI
	Medications   interfaces.MedicationAPI
	Prescriptions interfaces.PrescriptionAPI
}

// Phase is the coarse state of a view's data
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "error"
	default:
		return "unknown"
	}
}

// LoadState is Loading | Ready | Failed(message). Only Failed carries a message.
type LoadState struct {
	phase   Phase
	message string
}

func Loading() LoadState { return LoadState{phase: PhaseLoading} }
func Ready() LoadState   { return LoadState{phase: PhaseReady} }

func Failed(message string) LoadState {
	return LoadState{phase: PhaseFailed, message: message}
}

func (s LoadState) Phase() Phase     { return s.phase }
func (s LoadState) IsLoading() bool  { return s.phase == PhaseLoading }
func (s LoadState) IsReady() bool    { return s.phase == PhaseReady }
func (s LoadState) IsFailed() bool   { return s.phase == PhaseFailed }
func (s LoadState) Message() string  { return s.message }
func (s LoadState) String() string   { return s.phase.String() }

// SubmitPhase is the state of a form submission
type SubmitPhase int

const (
	SubmitIdle SubmitPhase = iota
	SubmitInFlight
	SubmitSucceeded
	SubmitFailed
)

// Submission is Idle | InFlight | Succeeded(until) | Failed(message).
// Success and failure are exclusive by construction.
type Submission struct {
	phase   SubmitPhase
	message string
	until   time.Time
}

func (s Submission) Phase() SubmitPhase { return s.phase }
func (s Submission) InFlight() bool     { return s.phase == SubmitInFlight }

// Error returns the failure message, empty unless the submission failed
func (s Submission) Error() string {
	if s.phase != SubmitFailed {
		return ""
	}
	return s.message
}

// SuccessVisible reports whether the success indicator is still showing at now
func (s Submission) SuccessVisible(now time.Time) bool {
	return s.phase == SubmitSucceeded && now.Before(s.until)
}

// ErrorMessage turns err into a display string, using fallback when err has no message
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}

// scope ties a view's asynchronous calls to its mounted lifetime
type scope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newScope(parent context.Context) scope {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return scope{ctx: ctx, cancel: cancel}
}

func (s scope) alive() bool {
	return s.ctx.Err() == nil
}
