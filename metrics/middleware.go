package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Page labels for the front end's routes
const (
	PageHome          = "home"
	PageList          = "list"
	PageCreateForm    = "create_form"
	PageCreateSubmit  = "create_submit"
	PageConfirmDelete = "confirm_delete"
	PageDelete        = "delete"
	PageHealth        = "health"
	PageMetrics       = "metrics"
	PageStatic        = "static"
	PageUnmatched     = "unmatched"
)

// PageFor names the page a routed request belongs to. The method splits the
// form and confirmation pages from the actions they post.
func PageFor(method, pattern string) string {
	post := method == http.MethodPost
	switch pattern {
	case "/":
		return PageHome
	case "/prescriptions":
		return PageList
	case "/prescriptions/new":
		if post {
			return PageCreateSubmit
		}
		return PageCreateForm
	case "/prescriptions/{id}/delete":
		if post {
			return PageDelete
		}
		return PageConfirmDelete
	case "/health":
		return PageHealth
	case "/metrics":
		return PageMetrics
	case "/static/*":
		return PageStatic
	}
	return PageUnmatched
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Metrics records request count, latency and in-flight requests per page
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		HTTPRequestInFlight.Inc()
		defer HTTPRequestInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The pattern is only known once chi has routed the request
		pattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			pattern = rctx.RoutePattern()
		}
		page := PageFor(r.Method, pattern)

		HTTPRequestTotals.WithLabelValues(r.Method, page, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(page).Observe(time.Since(start).Seconds())
	})
}
