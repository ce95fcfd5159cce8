// Package adminapi exposes the admin sub-dispatcher's list-in-progress,
// kill-op and unlock-fsync verbs over a chi-routed, JWT-authenticated HTTP
// surface, grounded on the teacher's controlplane API server (http.Server
// wrapping a chi.Router, JWT bearer auth via golang-jwt).
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docdb/docdbd/internal/logger"
	"github.com/docdb/docdbd/pkg/curop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the minimal JWT claim set the admin API recognizes.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// AdminDispatcher is the subset of pkg/dispatch.AdminDispatcher the HTTP
// surface drives.
type AdminDispatcher interface {
	Dispatch(ctx context.Context, namespace, verb string, query map[string]any, client *curop.Client) []byte
}

// Server is the admin HTTP surface.
type Server struct {
	server    *http.Server
	admin     AdminDispatcher
	registry  *curop.Registry
	jwtSecret []byte
	port      int
}

// Config configures the admin HTTP surface.
type Config struct {
	Port      int
	JWTSecret string
}

// NewServer constructs a Server bound to port, routing requests into admin
// and registering a dedicated curop.Client for each request.
func NewServer(cfg Config, admin AdminDispatcher, registry *curop.Registry) *Server {
	s := &Server{
		admin:     admin,
		registry:  registry,
		jwtSecret: []byte(cfg.JWTSecret),
		port:      cfg.Port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireJWT)
		r.Get("/api/v1/admin/inprog", s.handleInProg)
		r.Post("/api/v1/admin/killop", s.handleKillOp)
		r.Post("/api/v1/admin/unlock", s.handleUnlock)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving in the background; errors other than
// http.ErrServerClosed are logged.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin API server stopped", "error", err)
		}
	}()
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Port returns the configured listen port.
func (s *Server) Port() int { return s.port }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			return s.jwtSecret, nil
		})
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFrom(r *http.Request) *Claims {
	c, _ := r.Context().Value(claimsKey{}).(*Claims)
	return c
}

func (s *Server) clientFor(r *http.Request) *curop.Client {
	claims := claimsFrom(r)
	c := s.registry.NewClient(r.RemoteAddr)
	if claims != nil {
		c.Identity = curop.Identity{Authenticated: true, Admin: claims.Admin, Username: claims.Username}
	}
	return c
}

func (s *Server) handleInProg(w http.ResponseWriter, r *http.Request) {
	client := s.clientFor(r)
	defer s.registry.Remove(client.ID)

	query := map[string]any{}
	if ns := r.URL.Query().Get("ns"); ns != "" {
		query["ns"] = ns
	}

	reply := s.admin.Dispatch(r.Context(), "admin.$cmd.sys.inprog", "inprog", query, client)
	writeAdminReply(w, reply)
}

func (s *Server) handleKillOp(w http.ResponseWriter, r *http.Request) {
	client := s.clientFor(r)
	defer s.registry.Remove(client.ID)

	var body struct {
		Op float64 `json:"op"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	reply := s.admin.Dispatch(r.Context(), "admin.$cmd.sys.killop", "killop", map[string]any{"op": body.Op}, client)
	writeAdminReply(w, reply)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	client := s.clientFor(r)
	defer s.registry.Remove(client.ID)

	reply := s.admin.Dispatch(r.Context(), "admin.$cmd.sys.unlock", "unlock", map[string]any{}, client)
	writeAdminReply(w, reply)
}

// writeAdminReply strips the 4-byte length prefix the dispatch core uses
// for wire framing and writes the remaining JSON document as the HTTP body.
func writeAdminReply(w http.ResponseWriter, reply []byte) {
	w.Header().Set("Content-Type", "application/json")
	if len(reply) < 4 {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply[4:])
}
