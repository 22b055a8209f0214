// Package http exposes the ledger over a JSON REST API. Caller identity
// comes from the X-User-ID header; there is no authentication layer, the
// header is trusted as-is.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"splitledger/internal/balance"
	"splitledger/internal/core"
	"splitledger/internal/groups"
	"splitledger/internal/ledger"
	"splitledger/internal/settlement"
)

// BalanceReader answers balance queries. Satisfied by both the plain
// aggregator and its cached wrapper.
type BalanceReader interface {
	Pairwise(ctx context.Context, subject, counterpart uuid.UUID) (map[string]core.Money, error)
	Group(ctx context.Context, groupID uuid.UUID) (balance.GroupBalances, error)
}

type Server struct {
	http.Server

	ledger     *ledger.Service
	settlement *settlement.Coordinator
	groups     *groups.Service
	balances   BalanceReader

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer wires the routes and returns a ready-to-run server.
func NewServer(addr string, ldg *ledger.Service, stl *settlement.Coordinator, grp *groups.Service, bal BalanceReader) *Server {
	s := &Server{
		ledger:      ldg,
		settlement:  stl,
		groups:      grp,
		balances:    bal,
		rateLimiter: newRateLimiter(),
	}

	r := chi.NewRouter()
	r.Use(s.withRequestLog)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/expenses", func(r chi.Router) {
		r.Post("/", s.handleCreateExpense)
		r.Get("/", s.handleListExpenses)
		r.Route("/{expenseID}", func(r chi.Router) {
			r.Get("/", s.handleGetExpense)
			r.Patch("/", s.handleUpdateExpense)
			r.Delete("/", s.handleDeleteExpense)
			r.Post("/splits/{userID}/settle", s.handleSettleSplit)
		})
	})

	r.Route("/groups", func(r chi.Router) {
		r.Post("/", s.handleCreateGroup)
		r.Route("/{groupID}", func(r chi.Router) {
			r.Get("/", s.handleGetGroup)
			r.Post("/join", s.handleJoinGroup)
			r.Post("/leave", s.handleLeaveGroup)
			r.Get("/members", s.handleListMembers)
			r.Post("/members", s.handleAddMember)
			r.Delete("/members/{userID}", s.handleRemoveMember)
			r.Get("/balances", s.handleGroupBalances)
		})
	})

	r.Get("/balances/{counterpartID}", s.handlePairwiseBalance)

	s.Server = http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Shutdown stops the server and the rate limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withRequestLog tags every request with an id, applies write rate limiting
// and logs start and completion.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP)

		if isWrite(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type requestIDKey struct{}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
