package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/gregtusar/updown/pkg/trader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var errUnauthorized = errors.New("unauthorized")

// Trader is the part of the trader the API exposes.
type Trader interface {
	Status() trader.Status
	Positions() []models.Position
	Stop()
}

type Server struct {
	trader    Trader
	gatherer  prometheus.Gatherer
	jwtSecret []byte
	logger    *logrus.Logger
	http      *http.Server
}

func NewServer(t Trader, gatherer prometheus.Gatherer, jwtSecret string, logger *logrus.Logger, port string) *Server {
	s := &Server{
		trader:    t,
		gatherer:  gatherer,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.Handle("/api/stop", s.requireJWT(http.HandlerFunc(s.handleStop)))
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.trader.Status()
	code := http.StatusOK
	state := "healthy"
	if !status.Running {
		code = http.StatusServiceUnavailable
		state = "stopped"
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"trader":    status,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.trader.Positions())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Warn("Stop requested through API")
	s.trader.Stop()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// requireJWT accepts HS256 bearer tokens signed with the configured secret.
// With no secret configured every request is rejected.
func (s *Server) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.authenticate(r); err != nil {
			s.logger.WithError(err).WithField("path", r.URL.Path).Warn("Rejected API request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(r *http.Request) error {
	if len(s.jwtSecret) == 0 {
		return fmt.Errorf("%w: no jwt secret configured", errUnauthorized)
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return fmt.Errorf("%w: missing bearer token", errUnauthorized)
	}

	_, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
