package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dkeye/Converse/internal/adapters/signal"
	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/app/orch"
	"github.com/dkeye/Converse/internal/config"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/directory"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/metrics"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>converse</h1>"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Mode: "test", Secret: "test-secret", StaticPath: static}

	presence := core.NewPresenceRegistry()
	sessions := core.NewSessionTable()
	mm := core.NewMatchmaker(core.PolicyRandom, presence, sessions, core.NewWaitQueue(), 1)
	presence.Register("c1", "u1")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveTables(reg, presence.Count, mm.WaitingCount, sessions.Count)
	m.SessionCreated()

	o := &orch.Orchestrator{
		Matchmaker: mm,
		Presence:   presence,
		Sessions:   sessions,
		Conns:      app.NewRegistry(),
		Metrics:    m,
		Directory:  directory.NewStatic([]domain.Profile{{UserID: "u1", Username: "Ana", Country: "PT"}}),
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
	}
	ctl := signal.NewSignalWSController(o, signal.DefaultLimits())
	return SetupRouter(context.Background(), cfg, o, ctl, reg)
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthSetsClientCookie(t *testing.T) {
	r := newRouter(t)
	w := get(t, r, "/api/health")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("%d %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "ConverseSessions=") {
		t.Fatalf("cookie %q", w.Header().Get("Set-Cookie"))
	}
}

func TestStats(t *testing.T) {
	r := newRouter(t)
	w := get(t, r, "/api/stats")
	var st orch.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Online != 1 || st.Sessions != 0 || st.Policy != "random" {
		t.Fatalf("%+v", st)
	}
}

func TestICEServers(t *testing.T) {
	r := newRouter(t)
	w := get(t, r, "/api/ice-servers")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "stun:stun.example.org:3478") {
		t.Fatalf("%d %s", w.Code, w.Body)
	}
}

func TestUserLookup(t *testing.T) {
	r := newRouter(t)
	w := get(t, r, "/api/users/u1")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"username":"Ana"`) {
		t.Fatalf("%d %s", w.Code, w.Body)
	}
	if w := get(t, r, "/api/users/ghost"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user: %d", w.Code)
	}
	if w := get(t, r, "/api/users/"+strings.Repeat("x", 65)); w.Code != http.StatusBadRequest {
		t.Fatalf("long id: %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	r := newRouter(t)
	w := get(t, r, "/metrics")
	body, _ := io.ReadAll(w.Body)
	for _, want := range []string{
		"converse_sessions_created_total 1",
		"converse_presence_online 1",
		"converse_match_waiting 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in\n%s", want, body)
		}
	}
}

func TestStaticIndex(t *testing.T) {
	r := newRouter(t)
	w := get(t, r, "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "converse") {
		t.Fatalf("%d %s", w.Code, w.Body)
	}
}
