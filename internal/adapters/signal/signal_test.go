package signal_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/RandomVoice/internal/adapters/signal"
	"github.com/dkeye/RandomVoice/internal/app"
	"github.com/dkeye/RandomVoice/internal/app/orch"
	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newServer(t *testing.T, opts signal.Options) (*orch.Orchestrator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := app.NewRegistry()
	o := orch.New(reg, app.NewRoomManager(2), app.NewRelay(reg, app.DropPolicy{}))
	ctl := signal.NewSignalWSController(o, opts)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := gin.New()
	r.GET("/socket1", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c, "")
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return o, "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket1"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) (protocol.Envelope, string) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := protocol.DecodeServerFrame(msg)
	if err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return env, string(msg)
}

func login(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	send(t, c, `{"type":"Login","payload":{"data":"alice"}}`)
	env, raw := read(t, c)
	if env.Type != protocol.TypeLogin {
		t.Fatalf("login response = %s", raw)
	}
	return env.To
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWebSocket_MatchAndRelay(t *testing.T) {
	o, url := newServer(t, signal.Options{})
	a, b := dial(t, url, nil), dial(t, url, nil)

	ua, ub := login(t, a), login(t, b)
	if ua == ub || ua == "" {
		t.Fatalf("ids %q %q", ua, ub)
	}

	send(t, a, fmt.Sprintf(`{"type":"Enter","from":%q,"to":"","tx":"e1","payload":{"data":""}}`, ua))
	if env, raw := read(t, a); env.Type != protocol.TypeAck || env.Error != nil || env.Tx != "e1" {
		t.Fatalf("enter ack = %s", raw)
	}
	send(t, b, fmt.Sprintf(`{"type":"Enter","from":%q,"to":"","tx":"e2","payload":{"data":""}}`, ub))
	if env, raw := read(t, b); env.Type != protocol.TypeAck || env.Error != nil {
		t.Fatalf("enter ack = %s", raw)
	}
	if env, raw := read(t, a); env.Type != protocol.TypeNewMember || env.From != ub {
		t.Fatalf("new member push = %s", raw)
	}

	send(t, a, fmt.Sprintf(`{"type":"Offer","from":%q,"to":%q,"tx":"o1","payload":{"sdp":"v=0"}}`, ua, ub))
	if env, raw := read(t, a); env.Type != protocol.TypeAck || env.Error != nil || env.Tx != "o1" {
		t.Fatalf("offer ack = %s", raw)
	}
	_, raw := read(t, b)
	if want := fmt.Sprintf(`{"type":"Offer","from":%q,"to":%q,"payload":{"sdp":"v=0"}}`, ua, ub); raw != want {
		t.Fatalf("relayed = %s, want %s", raw, want)
	}

	_ = b.Close()
	eventually(t, func() bool { return o.Registry.Len() == 1 }, "disconnect cleanup")
	rooms := o.Rooms.List()
	if len(rooms) != 1 || len(rooms[0].Participants) != 1 || string(rooms[0].Participants[0]) != ua {
		t.Fatalf("rooms after abrupt close = %+v", rooms)
	}
}

func TestWebSocket_BadFramesKeepConnection(t *testing.T) {
	_, url := newServer(t, signal.Options{})
	c := dial(t, url, nil)

	send(t, c, `garbage`)
	send(t, c, `{"type":"Unknown"}`)
	if err := c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if id := login(t, c); id == "" {
		t.Fatalf("connection unusable after bad frames")
	}
}

func TestWebSocket_OriginAllowList(t *testing.T) {
	_, url := newServer(t, signal.Options{AllowedOrigins: []string{"https://ok.example"}})

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatalf("dial from disallowed origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %v", resp)
	}

	c := dial(t, url, http.Header{"Origin": {"https://ok.example"}})
	login(t, c)
}

func TestRateLimiter(t *testing.T) {
	rl := signal.NewRateLimiter(2)
	id := core.ConnID("c")
	if !rl.Allow(id) || !rl.Allow(id) {
		t.Fatalf("burst rejected")
	}
	if rl.Allow(id) {
		t.Fatalf("third immediate frame allowed")
	}
	if !rl.Allow("other") {
		t.Fatalf("limit leaked across connections")
	}
	rl.Forget(id)
	if !rl.Allow(id) {
		t.Fatalf("forgotten connection still limited")
	}

	disabled := signal.NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !disabled.Allow(id) {
			t.Fatalf("disabled limiter rejected a frame")
		}
	}
}
