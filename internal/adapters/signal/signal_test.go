package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/app/orch"
	"github.com/dkeye/Converse/internal/core"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type wireEvent struct {
	Type          string          `json:"type"`
	UserID        string          `json:"userId"`
	SessionID     string          `json:"sessionId"`
	PartnerUserID string          `json:"partnerUserId"`
	FromUserID    string          `json:"fromUserId"`
	Initiator     *bool           `json:"initiator"`
	Payload       json.RawMessage `json:"payload"`
	PayloadEnc    string          `json:"payloadEncoding"`
	Reason        string          `json:"reason"`
	Error         string          `json:"error"`
	Ref           string          `json:"ref"`
}

func newTestServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	presence := core.NewPresenceRegistry()
	sessions := core.NewSessionTable()
	conns := app.NewRegistry()
	o := &orch.Orchestrator{
		Matchmaker: core.NewMatchmaker(core.PolicyFIFO, presence, sessions, core.NewWaitQueue(), 3),
		Presence:   presence,
		Sessions:   sessions,
		Conns:      conns,
		Policy:     app.SimplePolicy{},
	}
	o.Relay = &app.SignalRelay{Sessions: sessions, Presence: presence, Conns: conns, Policy: app.SimplePolicy{}, OnPeerLost: o.DropPeer}

	limits := DefaultLimits()
	limits.RateLimit = 0
	ctl := NewSignalWSController(o, limits)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		ctl.Wait()
	})
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server, proto string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{Subprotocols: []string{proto}}
	ws, _, err := d.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ws.Subprotocol() != proto {
		t.Fatalf("negotiated %q", ws.Subprotocol())
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, ws *websocket.Conn) wireEvent {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev wireEvent
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	return ev
}

func expect(t *testing.T, ws *websocket.Conn, typ string) wireEvent {
	t.Helper()
	ev := read(t, ws)
	if ev.Type != typ {
		t.Fatalf("got %+v, want %s", ev, typ)
	}
	return ev
}

func TestSignalEndToEnd(t *testing.T) {
	srv, o := newTestServer(t)
	x := dial(t, srv, SubprotocolJSON)
	y := dial(t, srv, SubprotocolJSON)

	send(t, x, map[string]any{"type": "register-presence", "userId": "ux"})
	if ev := expect(t, x, "registered"); ev.UserID != "ux" {
		t.Fatalf("registered %+v", ev)
	}
	send(t, y, map[string]any{"type": "register-presence", "userId": "uy"})
	expect(t, y, "registered")

	send(t, x, map[string]any{"type": "request-match"})
	expect(t, x, "waiting")
	send(t, y, map[string]any{"type": "request-match"})

	py := expect(t, y, "paired")
	px := expect(t, x, "paired")
	if py.Initiator == nil || !*py.Initiator || px.Initiator == nil || *px.Initiator {
		t.Fatal("requester completing the pair must be the only initiator")
	}
	if px.SessionID == "" || px.SessionID != py.SessionID || px.PartnerUserID != "uy" {
		t.Fatalf("x=%+v y=%+v", px, py)
	}

	send(t, y, map[string]any{"type": "signal-offer", "sessionId": py.SessionID, "payload": map[string]any{"sdp": "v=0"}})
	send(t, y, map[string]any{"type": "signal-candidate", "payload": map[string]any{"candidate": "c1"}})
	offer := expect(t, x, "signal-offer")
	if offer.FromUserID != "uy" || string(offer.Payload) != `{"sdp":"v=0"}` {
		t.Fatalf("offer %+v payload %s", offer, offer.Payload)
	}
	if cand := expect(t, x, "signal-candidate"); string(cand.Payload) != `{"candidate":"c1"}` {
		t.Fatalf("candidate payload %s", cand.Payload)
	}

	send(t, x, map[string]any{"type": "signal-answer", "sessionId": "bogus", "payload": map[string]any{}})
	if ev := expect(t, x, "error"); ev.Error != codeSessionMismatch || ev.Ref != "signal-answer" {
		t.Fatalf("error %+v", ev)
	}

	y.Close()
	ended := expect(t, x, "call-ended")
	if ended.SessionID != px.SessionID || ended.Reason != "disconnect" {
		t.Fatalf("call-ended %+v", ended)
	}
	deadline := time.Now().Add(5 * time.Second)
	for o.Presence.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if o.Presence.Count() != 1 || o.Sessions.Count() != 0 {
		t.Fatalf("stats after disconnect %+v", o.Stats())
	}
}

func TestSignalEndCall(t *testing.T) {
	srv, _ := newTestServer(t)
	x := dial(t, srv, SubprotocolJSON)
	y := dial(t, srv, SubprotocolJSON)
	send(t, x, map[string]any{"type": "register-presence", "userId": "ux"})
	expect(t, x, "registered")
	send(t, y, map[string]any{"type": "register-presence", "userId": "uy"})
	expect(t, y, "registered")
	send(t, x, map[string]any{"type": "request-match"})
	expect(t, x, "waiting")
	send(t, y, map[string]any{"type": "request-match"})
	sid := expect(t, y, "paired").SessionID
	expect(t, x, "paired")

	send(t, y, map[string]any{"type": "end-call", "sessionId": sid})
	if ev := expect(t, x, "call-ended"); ev.SessionID != sid {
		t.Fatalf("call-ended %+v", ev)
	}
	send(t, y, map[string]any{"type": "signal-offer", "payload": map[string]any{"sdp": "late"}})
	if ev := expect(t, y, "error"); ev.Error != codeNotInSession {
		t.Fatalf("error %+v", ev)
	}
}

func TestSignalErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	x := dial(t, srv, SubprotocolJSON)

	send(t, x, map[string]any{"type": "request-match"})
	if ev := expect(t, x, "error"); ev.Error != codeNotRegistered || ev.Ref != "request-match" {
		t.Fatalf("%+v", ev)
	}
	send(t, x, map[string]any{"type": "teleport"})
	if ev := expect(t, x, "error"); ev.Error != codeUnknownType {
		t.Fatalf("%+v", ev)
	}
	send(t, x, map[string]any{"type": "register-presence", "userId": ""})
	if ev := expect(t, x, "error"); ev.Error != codeBadPayload {
		t.Fatalf("%+v", ev)
	}
	send(t, x, map[string]any{"type": "signal-offer"})
	if ev := expect(t, x, "error"); ev.Error != codeBadPayload {
		t.Fatalf("%+v", ev)
	}
	if err := x.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if ev := expect(t, x, "error"); ev.Error != codeBadPayload {
		t.Fatalf("%+v", ev)
	}
	send(t, x, map[string]any{"type": "ping"})
	expect(t, x, "pong")
}

func TestSignalMsgpackToJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	x := dial(t, srv, SubprotocolJSON)
	y := dial(t, srv, SubprotocolMsgpack)

	sendMsgpack := func(v map[string]any) {
		t.Helper()
		b, err := msgpack.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := y.WriteMessage(websocket.BinaryMessage, b); err != nil {
			t.Fatal(err)
		}
	}
	readMsgpack := func() map[string]any {
		t.Helper()
		_ = y.SetReadDeadline(time.Now().Add(5 * time.Second))
		mt, b, err := y.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if mt != websocket.BinaryMessage {
			t.Fatalf("message type %d", mt)
		}
		var m map[string]any
		if err := msgpack.Unmarshal(b, &m); err != nil {
			t.Fatal(err)
		}
		return m
	}

	send(t, x, map[string]any{"type": "register-presence", "userId": "ux"})
	expect(t, x, "registered")
	sendMsgpack(map[string]any{"type": "register-presence", "userId": "uy"})
	if m := readMsgpack(); m["type"] != "registered" || m["userId"] != "uy" {
		t.Fatalf("%v", m)
	}

	send(t, x, map[string]any{"type": "request-match"})
	expect(t, x, "waiting")
	sendMsgpack(map[string]any{"type": "request-match"})
	if m := readMsgpack(); m["type"] != "paired" || m["initiator"] != true {
		t.Fatalf("%v", m)
	}
	expect(t, x, "paired")

	sendMsgpack(map[string]any{"type": "signal-offer", "payload": []byte(`{"sdp":"bin"}`)})
	ev := expect(t, x, "signal-offer")
	var raw []byte
	if err := json.Unmarshal(ev.Payload, &raw); err != nil || ev.PayloadEnc != "base64" {
		t.Fatalf("payload %s encoding %q: %v", ev.Payload, ev.PayloadEnc, err)
	}
	if string(raw) != `{"sdp":"bin"}` {
		t.Fatalf("payload bytes %q", raw)
	}

	send(t, x, map[string]any{"type": "signal-answer", "payload": map[string]any{"sdp": "json"}})
	m := readMsgpack()
	if m["type"] != "signal-answer" || m["fromUserId"] != "ux" {
		t.Fatalf("%v", m)
	}
	if p, ok := m["payload"].([]byte); !ok || string(p) != `{"sdp":"json"}` {
		t.Fatalf("payload %#v", m["payload"])
	}
	if m["payloadEncoding"] != "json" {
		t.Fatalf("payloadEncoding %v", m["payloadEncoding"])
	}
}
