// Package observe exposes the bot's runtime state over HTTP: JSON snapshots
// of every supervised market, a websocket stream of the same, and the
// Prometheus scrape endpoint.
package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bbot/internal/domain"
)

// MarketSource provides the markets to snapshot. The supervisor implements it.
type MarketSource interface {
	Markets() []*domain.Market
}

// MarketSnapshot is the wire form of one market's state.
type MarketSnapshot struct {
	Market     string            `json:"market"`
	Rank       int               `json:"rank"`
	BaseVolume float64           `json:"base_volume"`
	Indicators domain.Indicators `json:"indicators"`
}

// Server serves the observer endpoints and pushes periodic snapshots to
// websocket subscribers.
type Server struct {
	source   MarketSource
	log      *slog.Logger
	interval time.Duration
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}

	httpSrv *http.Server
}

// NewServer builds the observer on addr, pushing snapshots every interval.
func NewServer(addr string, interval time.Duration, source MarketSource, log *slog.Logger) *Server {
	s := &Server{
		source:   source,
		log:      log,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The observer is a local diagnostic surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[*websocket.Conn]struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/markets", s.handleMarkets).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then broadcasts stop and shuts
// the listener down.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcastLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	s.log.Info("observer listening", slog.String("addr", s.httpSrv.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeSubscribers()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) snapshots() []MarketSnapshot {
	markets := s.source.Markets()
	out := make([]MarketSnapshot, len(markets))
	for i, m := range markets {
		out[i] = MarketSnapshot{
			Market:     m.Name,
			Rank:       m.Rank,
			BaseVolume: m.BaseVolume,
			Indicators: m.Snapshot(),
		}
	}
	return out
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshots()); err != nil {
		s.log.Warn("snapshot encode failed", slog.Any("error", err))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	s.subs[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("websocket subscriber connected", slog.String("remote", conn.RemoteAddr().String()))

	// Drain (and ignore) client frames so close handshakes are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[conn]; ok {
		delete(s.subs, conn)
		conn.Close()
	}
}

func (s *Server) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.subs {
		conn.Close()
		delete(s.subs, conn)
	}
}

// broadcastLoop pushes the market snapshots to every subscriber at the
// configured cadence.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		payload, err := json.Marshal(s.snapshots())
		if err != nil {
			s.log.Warn("snapshot marshal failed", slog.Any("error", err))
			continue
		}

		s.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(s.subs))
		for conn := range s.subs {
			conns = append(conns, conn)
		}
		s.mu.Unlock()

		for _, conn := range conns {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.drop(conn)
			}
		}
	}
}
