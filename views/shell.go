package views

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/giygas/prescriptions-web/entities"
)

// Tab is one of the two mutually exclusive screens
type Tab string

const (
	TabList   Tab = "list"
	TabCreate Tab = "create"
)

// ErrUnknownTab is returned by Show for anything but list or create
var ErrUnknownTab = errors.New("unknown tab")

// Shell switches between the list and the create form. Only the active
// view is mounted: switching unmounts the other, so its state is lost.
type Shell struct {
	mu       sync.Mutex
	ctx      context.Context
	backend  Backend
	formOpts []FormOption

	active  Tab
	refresh uint64
	list    *ListView
	form    *FormView
}

// NewShell starts on the list tab. ctx is the lifetime of every view it mounts.
func NewShell(ctx context.Context, backend Backend, formOpts ...FormOption) *Shell {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Shell{
		ctx:      ctx,
		backend:  backend,
		formOpts: formOpts,
		active:   TabList,
	}
	s.list = NewListView(ctx, backend)
	return s
}

// Active returns the visible tab
func (s *Shell) Active() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// RefreshToken changes every time a prescription is created
func (s *Shell) RefreshToken() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

// Show activates tab, unmounting the previous view. Showing the active tab is a no-op.
func (s *Shell) Show(tab Tab) error {
	if tab != TabList && tab != TabCreate {
		return fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.showLocked(tab)
	return nil
}

func (s *Shell) showLocked(tab Tab) {
	if tab == s.active {
		return
	}

	switch s.active {
	case TabList:
		s.list.Unmount()
		s.list = nil
	case TabCreate:
		s.form.Unmount()
		s.form = nil
	}

	s.active = tab
	switch tab {
	case TabList:
		s.list = NewListView(s.ctx, s.backend)
	case TabCreate:
		opts := append([]FormOption{OnSuccess(s.created)}, s.formOpts...)
		s.form = NewFormView(s.ctx, s.backend, opts...)
	}
}

// List returns the mounted list view, switching to the list tab if needed
func (s *Shell) List() *ListView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showLocked(TabList)
	return s.list
}

// Form returns the mounted form view, switching to the create tab if needed
func (s *Shell) Form() *FormView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showLocked(TabCreate)
	return s.form
}

// PrescriptionCreated returns to the list and bumps the refresh token
func (s *Shell) PrescriptionCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh++
	s.showLocked(TabList)
}

func (s *Shell) created(entities.Prescription) {
	s.PrescriptionCreated()
}

// Close unmounts whatever view is active
func (s *Shell) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.list != nil {
		s.list.Unmount()
	}
	if s.form != nil {
		s.form.Unmount()
	}
}
