// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/session"
	"github.com/shark-minister/atlas-bey/internal/status"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

// Device is the session surface the API drives.
type Device interface {
	State() session.State
	RequestDevice(ctx context.Context) (transport.DeviceHandle, error)
	Connect(ctx context.Context) (protocol.DeviceInfo, error)
	Disconnect(ctx context.Context) error
	ReadDeviceInfo(ctx context.Context) (protocol.DeviceInfo, error)
	ReadParameters(ctx context.Context) (protocol.Parameters, error)
	WriteParameters(ctx context.Context, p protocol.Parameters) error
	ReadStatistics(ctx context.Context) (protocol.Statistics, protocol.Histogram, error)
	ClearStatistics(ctx context.Context) error
	LaunchManually(ctx context.Context) error
	SwitchToAutoMode(ctx context.Context) error
}

// Config tunes request handling.
type Config struct {
	// OpTimeout bounds each device operation. Zero leaves only the
	// request context.
	OpTimeout time.Duration

	// ScanTimeout bounds scan and connect.
	ScanTimeout time.Duration
}

// Server is the local JSON API.
type Server struct {
	mux *http.ServeMux
	dev Device
	hub *WSHub
	cfg Config
	log zerolog.Logger
}

// New wires routes for dev. hub receives session and poll events when it
// is also registered as a session observer.
func New(dev Device, hub *WSHub, cfg Config, log zerolog.Logger) *Server {
	if hub == nil {
		hub = NewWSHub()
	}
	s := &Server{
		mux: http.NewServeMux(),
		dev: dev,
		hub: hub,
		cfg: cfg,
		log: log,
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("/api/device-info", s.handleDeviceInfo)
	s.mux.HandleFunc("/api/params", s.handleParams)
	s.mux.HandleFunc("/api/statistics", s.handleStatistics)
	s.mux.HandleFunc("/api/statistics/clear", s.handleCommand(dev.ClearStatistics))
	s.mux.HandleFunc("/api/launch", s.handleCommand(dev.LaunchManually))
	s.mux.HandleFunc("/api/auto-mode", s.handleCommand(dev.SwitchToAutoMode))

	s.mux.HandleFunc("/ws/events", s.handleWSEvents)

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Hub returns the event hub.
func (s *Server) Hub() *WSHub { return s.hub }

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("http api listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// httpStatus maps session error kinds onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, session.ErrEncodeInvariantViolation):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, transport.ErrNotFound), errors.Is(err, transport.ErrUserCancelled):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, httpStatus(err), APIError{Error: err.Error(), Code: status.ErrorCode(err)})
}

func (s *Server) opContext(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, HealthResponse{OK: true, Timestamp: time.Now()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, s.dev.State())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := s.opContext(r, s.cfg.ScanTimeout)
	defer cancel()

	h, err := s.dev.RequestDevice(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, 200, ScanResponse{Device: h})
}

func (s *Server) deviceInfoResponse(info protocol.DeviceInfo) DeviceInfoResponse {
	return DeviceInfoResponse{
		Info:       info,
		Version:    info.VersionString(),
		Generation: s.dev.State().Generation.String(),
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := s.opContext(r, s.cfg.ScanTimeout+s.cfg.OpTimeout)
	defer cancel()

	info, err := s.dev.Connect(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, 200, s.deviceInfoResponse(info))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := s.opContext(r, s.cfg.OpTimeout)
	defer cancel()

	if err := s.dev.Disconnect(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, 200, OKResponse{OK: true})
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := s.opContext(r, s.cfg.OpTimeout)
	defer cancel()

	info, err := s.dev.ReadDeviceInfo(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, 200, s.deviceInfoResponse(info))
}

// handleParams reads on GET. On POST the body is applied over the cached
// parameters, so clients may send only the fields they change; a POST
// before any successful read is refused.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.opContext(r, s.cfg.OpTimeout)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		p, err := s.dev.ReadParameters(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, 200, p)

	case http.MethodPost:
		st := s.dev.State()
		if !st.HasParameters {
			// the overlay base would be client defaults, not the device's block
			s.writeJSON(w, http.StatusConflict, APIError{Error: "parameters not read yet; GET /api/params first"})
			return
		}
		p := st.Parameters
		if err := s.readJSON(r, &p); err != nil {
			s.writeJSON(w, 400, APIError{Error: err.Error()})
			return
		}
		if err := s.dev.WriteParameters(ctx, p); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, 200, p)

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ctx, cancel := s.opContext(r, s.cfg.OpTimeout)
	defer cancel()

	stats, hist, err := s.dev.ReadStatistics(ctx)
	switch {
	case errors.Is(err, session.ErrIncompleteHistogram):
		// the header was read; hand it back with the cached histogram
		st := s.dev.State()
		s.writeJSON(w, http.StatusBadGateway, StatisticsResponse{
			Statistics: stats,
			Histogram:  st.Histogram,
			Summary:    st.Histogram.Summary(),
			Error:      err.Error(),
		})
	case err != nil:
		s.writeError(w, err)
	default:
		s.writeJSON(w, 200, StatisticsResponse{
			Statistics: stats,
			Histogram:  hist,
			Summary:    hist.Summary(),
		})
	}
}

func (s *Server) handleCommand(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := s.opContext(r, s.cfg.OpTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, 200, OKResponse{OK: true})
	}
}
