package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"

	"github.com/ecowatt/tourate/pkg/controller"
	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/storage"
	"github.com/ecowatt/tourate/pkg/tariff"
	"github.com/ecowatt/tourate/pkg/types"
)

// tokenVerifier is a function that validates a Google ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

type tickRunner interface {
	RunTick(ctx context.Context, categories []types.RateCategory, now time.Time) controller.TickReport
}

type rateQuoter interface {
	Quote(category types.RateCategory, now time.Time) tariff.Quote
}

type testSender interface {
	SendTest(ctx context.Context, email string) (string, error)
}

// Server exposes the tick endpoint for an external scheduler along with the
// read and subscription API used by the dashboard.
type Server struct {
	controller tickRunner
	engine     rateQuoter
	storage    storage.Database
	notifier   testSender

	categories  []types.RateCategory
	tickTimeout time.Duration
	now         func() time.Time

	listenAddr string
	httpServer *http.Server
	serverName string

	// operatorEmails may call the tick, test and subscriber endpoints
	operatorEmails []string
	verifier       tokenVerifier
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(c tickRunner, e rateQuoter, s storage.Database, n testSender) *Server {
	srv := &Server{
		controller: c,
		engine:     e,
		storage:    s,
		notifier:   n,
		now:        time.Now,
		serverName: "tourate",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	categories := lflag.String("rate-categories", "DOMESTIC,INDUSTRIAL,NON_DOMESTIC", "Comma-delimited categories processed on each tick, in order")
	tickTimeout := lflag.Duration("tick-timeout", 10*time.Minute, "Deadline for a tick triggered through /api/tick")
	tickAudience := lflag.String("tick-audience", "", "Audience expected on ID tokens calling /api/tick, empty disables verification")
	tickEmail := lflag.String("tick-email", "", "comma-delimited list of service account or operator emails allowed to call /api/tick, /api/notify/test and /api/subscribers")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.tickTimeout = *tickTimeout

		cats, err := types.ParseRateCategories(*categories)
		if err != nil {
			panic(fmt.Sprintf("invalid rate-categories: %v", err))
		}
		srv.categories = cats

		if *tickEmail != "" {
			for _, email := range strings.Split(*tickEmail, ",") {
				if email = strings.TrimSpace(email); email != "" {
					srv.operatorEmails = append(srv.operatorEmails, email)
				}
			}
		}

		if *tickAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.verifier = provider.Verifier(&oidc.Config{ClientID: *tickAudience}).Verify
			if len(srv.operatorEmails) == 0 {
				log.Ctx(context.Background()).Error("tick-email is required when tick-audience is set")
				os.Exit(1)
			}
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/tick", s.requireOperator(s.handleTick))
	apiMux.HandleFunc("POST /api/notify/test", s.requireOperator(s.handleNotifyTest))
	apiMux.HandleFunc("GET /api/history/rates", s.handleHistoryRates)
	apiMux.HandleFunc("GET /api/rates/current", s.handleCurrentRates)
	apiMux.HandleFunc("POST /api/subscribers", s.requireOperator(s.handleAddSubscriber))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.requestLogMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.setupHandler(),
		// a tick may take minutes, so the write timeout covers the tick deadline
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.tickTimeout + 30*time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("reqPath", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// decodeJSONBody decodes a small JSON request body into v.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Categories returns the categories processed on each tick, in order.
func (s *Server) Categories() []types.RateCategory {
	return s.categories
}
