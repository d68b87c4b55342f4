package observe

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"bbot/internal/domain"
)

type staticSource struct {
	markets []*domain.Market
}

func (s *staticSource) Markets() []*domain.Market { return s.markets }

func testSource() *staticSource {
	m := &domain.Market{Name: "BTC-LTC", Rank: 1, BaseVolume: 200}
	m.PublishIndicators(domain.Indicators{WilderRSI: 42, UpdatedAt: time.Unix(1700000000, 0)})
	return &staticSource{markets: []*domain.Market{m}}
}

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer("127.0.0.1:0", 10*time.Millisecond, testSource(), log)

	r := mux.NewRouter()
	r.HandleFunc("/markets", s.handleMarkets).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestMarketsEndpoint(t *testing.T) {
	_, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/markets")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snaps []MarketSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	require.Equal(t, "BTC-LTC", snaps[0].Market)
	require.Equal(t, 1, snaps[0].Rank)
	require.Equal(t, 42.0, snaps[0].Indicators.WilderRSI)
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketReceivesBroadcast(t *testing.T) {
	s, srv := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Drive one broadcast by hand rather than running the loop.
	payload, err := json.Marshal(s.snapshots())
	require.NoError(t, err)

	// Wait for the subscription to register.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subs) == 1
	}, time.Second, 5*time.Millisecond)

	s.mu.Lock()
	for c := range s.subs {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, payload))
	}
	s.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var snaps []MarketSnapshot
	require.NoError(t, json.Unmarshal(msg, &snaps))
	require.Len(t, snaps, 1)
	require.Equal(t, "BTC-LTC", snaps[0].Market)
}
