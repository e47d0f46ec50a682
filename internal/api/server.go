package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"darpnav/internal/auth"
	"darpnav/internal/config"
	"darpnav/internal/store"
	"darpnav/internal/webhooks"
)

type Server struct {
	Store     store.Store
	Pub       *webhooks.Publisher
	Auth      *auth.Verifier
	Broker    EventBroker
	Locations *LocationCache

	cfg      config.Config
	dispatch *dispatchManager
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	cfg, err := config.Load(os.Getenv("SOLVER_CONFIG"))
	if err != nil {
		return nil, err
	}
	srv := &Server{
		Store:     s,
		Pub:       webhooks.NewPublisher(s),
		Auth:      auth.NewVerifierFromEnv(),
		Broker:    broker,
		Locations: NewLocationCache(),
		cfg:       cfg,
	}
	srv.dispatch = newDispatchManager(srv)
	return srv, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	// For now, get tenant from header; in production decode from JWT.
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// normalizeTenantID trims whitespace and applies the demo fallback so
// header and JWT paths agree on the tenant key.
func (s *Server) normalizeTenantID(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return "t_demo"
	}
	return t
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
