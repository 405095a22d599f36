// Package session keeps one Shell per browser, identified by a cookie.
package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/giygas/prescriptions-web/interfaces"
	"github.com/giygas/prescriptions-web/logging"
	"github.com/giygas/prescriptions-web/metrics"
	"github.com/giygas/prescriptions-web/views"
)

// CookieName holds the session id
const CookieName = "rx_session"

// Session is the server-side state of one browser
type Session struct {
	ID    string
	Shell *views.Shell

	cancel     context.CancelFunc
	submitting atomic.Bool

	mu         sync.Mutex
	lastSeen   time.Time
	flash      string
	flashUntil time.Time
}

// SetFlash shows msg on the next pages rendered before until
func (s *Session) SetFlash(msg string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash, s.flashUntil = msg, until
}

// Flash returns the flash message if it has not expired at now
func (s *Session) Flash(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flash == "" || !now.Before(s.flashUntil) {
		s.flash = ""
		return ""
	}
	return s.flash
}

// TryBeginSubmit claims the submission slot; false if one is already in flight
func (s *Session) TryBeginSubmit() bool {
	return s.submitting.CompareAndSwap(false, true)
}

// EndSubmit releases the submission slot
func (s *Session) EndSubmit() {
	s.submitting.Store(false)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) close() {
	s.Shell.Close()
	s.cancel()
}

// Store holds live sessions in memory
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	backend  views.Backend
	idle     time.Duration
	now      func() time.Time
	formOpts []views.FormOption
}

var _ interfaces.Sweeper = (*Store)(nil)

// NewStore creates a store whose sessions expire after idle without requests
func NewStore(backend views.Backend, idle time.Duration, formOpts ...views.FormOption) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		backend:  backend,
		idle:     idle,
		now:      time.Now,
		formOpts: formOpts,
	}
}

// Get returns the live session id and marks it as used
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if ok {
		s.touch(st.now())
	}
	return s, ok
}

// Create starts a new session with a fresh Shell
func (st *Store) Create() *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.NewString(),
		Shell:    views.NewShell(ctx, st.backend, st.formOpts...),
		cancel:   cancel,
		lastSeen: st.now(),
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	n := len(st.sessions)
	st.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	return s
}

// Len returns the number of live sessions
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep closes sessions idle for longer than the store timeout
func (st *Store) Sweep() int {
	now := st.now()

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.idleSince(now) > st.idle {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	remaining := len(st.sessions)
	st.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	metrics.SessionsActive.Set(float64(remaining))

	if len(expired) > 0 {
		logging.Debug("Sessions swept", "expired", len(expired), "remaining", remaining)
	}
	return remaining
}

// Close ends every session
func (st *Store) Close() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	metrics.SessionsActive.Set(0)
}

type contextKey struct{}

// Middleware attaches the browser's session to the request, creating it when missing
func (st *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s *Session
		if c, err := r.Cookie(CookieName); err == nil {
			s, _ = st.Get(c.Value)
		}
		if s == nil {
			s = st.Create()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, s)))
	})
}

// FromContext returns the request's session, nil outside the middleware
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
