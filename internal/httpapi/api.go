package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"scorecard.org/internal/audit"
	"scorecard.org/internal/auth"
	"scorecard.org/internal/obs"
	"scorecard.org/internal/sheet"
	"scorecard.org/internal/template"
)

// ReadyProbe reports readiness by pinging the database when one is attached.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Every inbound operation resolves identity first,
// then — for sheet routes — access, then executes and records an audit entry.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	templates  *template.Service
	sheets     *sheet.Service
	recorder   *audit.Recorder
	readyProbe ReadyProbe
	version    string

	secureCookies bool
	rateBurst     int
	ratePerSec    int
}

// Config carries API construction options.
type Config struct {
	Version       string
	SecureCookies bool
	RateBurst     int
	RatePerSec    int
}

// New wires the route table.
func New(authSvc *auth.Service, templates *template.Service, sheets *sheet.Service,
	recorder *audit.Recorder, rp ReadyProbe, cfg Config) *API {

	a := &API{
		mux:           http.NewServeMux(),
		auth:          authSvc,
		templates:     templates,
		sheets:        sheets,
		recorder:      recorder,
		readyProbe:    rp,
		version:       cfg.Version,
		secureCookies: cfg.SecureCookies,
		rateBurst:     cfg.RateBurst,
		ratePerSec:    cfg.RatePerSec,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 50
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 25
	}

	a.mux.HandleFunc("/health", a.handleHealth)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/register", a.handleAuthRegister)
	a.mux.HandleFunc("/auth/login", a.handleAuthLogin)
	a.mux.HandleFunc("/auth/refresh", a.handleAuthRefresh)
	a.mux.HandleFunc("/auth/logout", a.handleAuthLogout)

	a.mux.HandleFunc("/templates", a.handleTemplatesCollection)
	a.mux.HandleFunc("/templates/", a.handleTemplateScoped)

	a.mux.HandleFunc("/sheets", a.handleSheetsCollection)
	a.mux.HandleFunc("/sheets/", a.handleSheetScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "scorecard-api",
		"version": a.version,
	})
}

// audit records an entry for a completed mutation.
func (a *API) audit(ctx context.Context, action, entityType, entityID string, detail map[string]any) {
	a.recorder.Record(ctx, action, entityType, entityID, detail)
}
