package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rapidride/internal/domain"
	"rapidride/internal/identity"
	"rapidride/internal/presence"
)

type tokenAuth map[string]*domain.Account

func (a tokenAuth) Authenticate(_ context.Context, token string) (*identity.Claims, *domain.Account, error) {
	account, ok := a[token]
	if !ok {
		return nil, nil, identity.ErrInvalidToken
	}
	return &identity.Claims{UID: account.IdentityRef}, account, nil
}

// onlineHandler puts drivers online on "driver:online" and does nothing else.
type onlineHandler struct {
	registry *presence.MemoryRegistry
}

func (h onlineHandler) HandleSocketEvent(ctx context.Context, c Client, event string, _ json.RawMessage) error {
	if event != "driver:online" {
		return errors.New("unsupported event")
	}
	return h.registry.GoOnline(ctx, presence.Entry{AccountID: c.AccountID, SessionID: c.SessionID})
}

type socketFixture struct {
	hub      *Hub
	registry *presence.MemoryRegistry
	server   *httptest.Server
}

func newSocketFixture(t *testing.T) *socketFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := presence.NewMemoryRegistry(time.Hour)
	hub := NewHub(onlineHandler{registry: registry}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	auth := tokenAuth{
		"rider-1":  {ID: "rider-1", Role: domain.RoleRider},
		"driver-1": {ID: "driver-1", Role: domain.RoleDriver},
	}

	router := gin.New()
	router.GET("/ws", NewHandler(context.Background(), hub, auth, nil).ServeWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &socketFixture{hub: hub, registry: registry, server: server}
}

func (f *socketFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", token, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeWS_RejectsUnknownToken(t *testing.T) {
	f := newSocketFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=nobody"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestDisconnect_KeepsPresenceEntry(t *testing.T) {
	f := newSocketFixture(t)
	conn := f.dial(t, "driver-1")

	if err := conn.WriteJSON(Envelope{Event: "driver:online"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "driver online", func() bool {
		_, ok := f.registry.Get("driver-1")
		return ok
	})
	if n := f.hub.SessionCount(); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}

	conn.Close()
	waitFor(t, "session unregistered", func() bool { return f.hub.SessionCount() == 0 })

	if _, ok := f.registry.Get("driver-1"); !ok {
		t.Error("disconnect alone must not remove the presence entry")
	}
}

func TestSendToAccounts_TargetsOnlyNamedAccounts(t *testing.T) {
	f := newSocketFixture(t)
	riderTab := f.dial(t, "rider-1")
	riderPhone := f.dial(t, "rider-1")
	driver := f.dial(t, "driver-1")
	waitFor(t, "three sessions", func() bool { return f.hub.SessionCount() == 3 })

	if sent := f.hub.SendToAccounts("ride:accepted", map[string]string{"rideId": "ride-1"}, "rider-1", "rider-1"); sent != 2 {
		t.Fatalf("expected 2 sessions reached, got %d", sent)
	}

	for i, conn := range []*websocket.Conn{riderTab, riderPhone} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("rider session %d: read: %v", i, err)
		}
		if env.Event != "ride:accepted" || !strings.Contains(string(env.Data), "ride-1") {
			t.Errorf("rider session %d: unexpected frame %+v", i, env)
		}
	}

	_ = driver.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var env Envelope
	if err := driver.ReadJSON(&env); err == nil {
		t.Errorf("driver must not receive the rider's event, got %+v", env)
	}
}

func TestInboundEventError_IsReportedToSender(t *testing.T) {
	f := newSocketFixture(t)
	conn := f.dial(t, "rider-1")

	if err := conn.WriteJSON(Envelope{Event: "driver:teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Event != "error" || !strings.Contains(string(env.Data), "unsupported event") {
		t.Errorf("unexpected frame %+v", env)
	}
}
