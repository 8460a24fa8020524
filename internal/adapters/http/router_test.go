package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/RandomVoice/internal/adapters/signal"
	"github.com/dkeye/RandomVoice/internal/app"
	"github.com/dkeye/RandomVoice/internal/app/orch"
	"github.com/dkeye/RandomVoice/internal/config"
	"github.com/dkeye/RandomVoice/internal/core/coretest"
	"github.com/dkeye/RandomVoice/internal/media"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:         "test",
		Secret:       "test-secret",
		SocketPath:   "/socket1",
		IdentityMode: config.IdentityModeLogin,
		RoomCapacity: 2,
		SlowConsumer: "drop",
		SendBuffer:   8,
		ICEServers:   []config.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	}
}

func newRouter(t *testing.T, cfg *config.Config) (*orch.Orchestrator, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := app.NewRegistry()
	o := orch.New(reg, app.NewRoomManager(cfg.RoomCapacity), app.NewRelay(reg, app.DropPolicy{}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := SetupRouter(ctx, cfg, Deps{
		Orch:   o,
		Signal: signal.NewSignalWSController(o, signal.Options{SendBuffer: cfg.SendBuffer}),
		Media:  media.NewMemoryStore(),
	})
	return o, Handler(cfg, r)
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndStaticListings(t *testing.T) {
	_, h := newRouter(t, testConfig())

	w := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body)
	}
	if w.Header().Get("Set-Cookie") == "" {
		t.Fatalf("session cookie not issued")
	}

	w = do(h, httptest.NewRequest(http.MethodGet, "/message/all", nil))
	var msgs []message
	if err := json.Unmarshal(w.Body.Bytes(), &msgs); err != nil || len(msgs) != len(messages) {
		t.Fatalf("messages = %s, %v", w.Body, err)
	}

	w = do(h, httptest.NewRequest(http.MethodGet, "/api/ice-servers", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "stun:stun.example.com:3478") {
		t.Fatalf("ice servers = %d %s", w.Code, w.Body)
	}
}

func TestRoomsSnapshot(t *testing.T) {
	o, h := newRouter(t, testConfig())
	u, _ := o.Registry.Register("alice", coretest.NewConn("c1"))
	if _, _, err := o.Rooms.Join(u); err != nil {
		t.Fatalf("Join: %v", err)
	}

	w := do(h, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	var rooms []struct {
		ID           string   `json:"id"`
		Capacity     int      `json:"capacity"`
		Participants []string `json:"participants"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
	if len(rooms) != 1 || rooms[0].Capacity != 2 || len(rooms[0].Participants) != 1 || rooms[0].Participants[0] != "alice" {
		t.Fatalf("rooms = %+v", rooms)
	}
}

func upload(t *testing.T, h http.Handler, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "upload.bin")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(h, req)
}

func TestMediaEndpoints(t *testing.T) {
	_, h := newRouter(t, testConfig())

	if w := upload(t, h, "beep", []byte("beep-bytes")); w.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", w.Code, w.Body)
	}
	if w := upload(t, h, "beep", []byte("again")); w.Code != http.StatusConflict {
		t.Fatalf("duplicate upload = %d, want 409", w.Code)
	}

	w := do(h, httptest.NewRequest(http.MethodGet, "/media/beep", nil))
	if w.Code != http.StatusOK || w.Body.String() != "beep-bytes" {
		t.Fatalf("get = %d %q", w.Code, w.Body)
	}
	w = do(h, httptest.NewRequest(http.MethodGet, "/media/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing = %d", w.Code)
	}

	w = do(h, httptest.NewRequest(http.MethodGet, "/media/all", nil))
	var names []string
	if err := json.Unmarshal(w.Body.Bytes(), &names); err != nil || len(names) != 1 || names[0] != "beep" {
		t.Fatalf("list = %s, %v", w.Body, err)
	}

	req := httptest.NewRequest(http.MethodPost, "/media", strings.NewReader("not multipart"))
	if w := do(h, req); w.Code != http.StatusBadRequest {
		t.Fatalf("upload without file = %d", w.Code)
	}
}

func TestBackgroundAudio(t *testing.T) {
	cfg := testConfig()
	_, h := newRouter(t, cfg)
	if w := do(h, httptest.NewRequest(http.MethodGet, "/media/bg", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("bg without config = %d", w.Code)
	}

	cfg = testConfig()
	cfg.Media.BackgroundPath = filepath.Join(t.TempDir(), "bg.ogg")
	if err := os.WriteFile(cfg.Media.BackgroundPath, []byte("OggS"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, h = newRouter(t, cfg)
	w := do(h, httptest.NewRequest(http.MethodGet, "/media/bg", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OggS" {
		t.Fatalf("bg = %d %q", w.Code, w.Body)
	}
}

func TestStaticFrontend(t *testing.T) {
	cfg := testConfig()
	_, h := newRouter(t, cfg)
	if w := do(h, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("/ without static_path = %d", w.Code)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>rv</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg = testConfig()
	cfg.StaticPath = dir
	_, h = newRouter(t, cfg)

	w := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<html>rv</html>") {
		t.Fatalf("/ = %d %q", w.Code, w.Body)
	}
	w = do(h, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if w.Code != http.StatusOK || w.Body.String() != "console.log(1)" {
		t.Fatalf("/static/app.js = %d %q", w.Code, w.Body)
	}
}

func TestCORSAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://ok.example"}
	_, h := newRouter(t, cfg)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		return do(h, req)
	}
	if got := preflight("https://ok.example").Header().Get("Access-Control-Allow-Origin"); got != "https://ok.example" {
		t.Fatalf("allowed origin header = %q", got)
	}
	if got := preflight("https://evil.example").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got header %q", got)
	}
}

func TestConnectModeIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.IdentityMode = config.IdentityModeConnect
	o, h := newRouter(t, cfg)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.SocketPath

	c, _, err := websocket.DefaultDialer.Dial(url, http.Header{userIDHeader: {"bob"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := o.Registry.Lookup("bob"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("header identity never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{userIDHeader: {strings.Repeat("x", 65)}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized identity accepted: %v %v", resp, err)
	}

	anon, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial without header: %v", err)
	}
	t.Cleanup(func() { _ = anon.Close() })
	deadline = time.Now().Add(5 * time.Second)
	for o.Registry.Len() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("session token identity never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
