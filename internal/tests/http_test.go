package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/app"
	"rapidride/internal/config"
	"rapidride/internal/domain"
	"rapidride/internal/estimator"
	"rapidride/internal/handler"
	"rapidride/internal/identity"
	"rapidride/internal/middleware"
	"rapidride/internal/realtime"
	"rapidride/internal/repository/memory"
	"rapidride/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tokenAuthenticator maps bearer tokens straight to accounts.
type tokenAuthenticator struct {
	accounts *MockAccountRepository
}

func (a *tokenAuthenticator) Authenticate(ctx context.Context, token string) (*identity.Claims, *domain.Account, error) {
	account, err := a.accounts.GetByID(ctx, token)
	if err != nil {
		return nil, nil, identity.ErrNoAccount
	}
	return &identity.Claims{UID: account.IdentityRef}, account, nil
}

type stubEstimatorHealth struct{}

func (stubEstimatorHealth) Health(context.Context) estimator.Health {
	return estimator.Health{Status: "ok", ModelLoaded: true}
}

type apiFixture struct {
	*rideFixture
	router http.Handler
}

func newAPIFixture(t *testing.T, limits config.RateLimitConfig) *apiFixture {
	t.Helper()

	f := newRideFixture(t)
	logger := DiscardLogger()
	auth := &tokenAuthenticator{accounts: f.accounts}
	hub := realtime.NewHub(nil, logger)

	driverService := service.NewDriverService(f.accounts, f.rides, f.registry, nil, logger)
	accountService := service.NewAccountService(
		f.accounts, f.rides, f.tx,
		identity.NewDevProviderVerifier(testSecret, "", ""),
		identity.NewResolver(f.accounts, logger),
		identity.NewSessionIssuer(testSecret, time.Hour),
		logger,
	)
	origins := middleware.NewOriginPolicy(nil)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(f.service, nil, nil),
		DriverHandler:  handler.NewDriverHandler(driverService),
		AccountHandler: handler.NewAccountHandler(accountService),
		SupportHandler: handler.NewSupportHandler(service.NewSupportService(
			memory.NewSupportRepository(256, memory.SupportRetention), logger)),
		HealthHandler: handler.NewHealthHandler(stubEstimatorHealth{},
			handler.PingFunc(func(context.Context) error { return nil }), nil, hub),
		SocketHandler: realtime.NewHandler(context.Background(), hub, auth, origins.Allowed),
		Authenticator: auth,
		Limiter:       middleware.NewLocalLimiter(1024),
		Replays:       middleware.NewLocalReplayStore(256),
		RateLimits:    limits,
		Origins:       origins,
		Logger:        logger,
	})

	return &apiFixture{rideFixture: f, router: router}
}

func defaultLimits() config.RateLimitConfig {
	return config.RateLimitConfig{
		APIRequests:  1000,
		APIWindow:    time.Minute,
		AuthRequests: 100,
		AuthWindow:   time.Minute,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

var testRideBody = map[string]any{
	"pickup":         map[string]any{"address": "Koramangala", "lat": 12.9352, "lng": 77.6245},
	"destination":    map[string]any{"address": "Indiranagar", "lat": 12.9784, "lng": 77.6408},
	"vehicleType":    "Car",
	"payment_method": "cash",
}

// ──────────────────────────────────────────────
// 1. AUTHENTICATION
// ──────────────────────────────────────────────

func TestAPI_RequiresToken(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	testCases := []struct {
		name     string
		token    string
		wantCode int
		wantMsg  string
	}{
		{"no token", "", http.StatusUnauthorized, "No token provided"},
		{"unknown account", "ghost", http.StatusUnauthorized, "User not found. Please sign in again."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/rides/current", tc.token, nil)
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, w.Code)
			}
			var resp handler.ErrorResponse
			decode(t, w, &resp)
			if resp.Error != tc.wantMsg {
				t.Errorf("expected %q, got %q", tc.wantMsg, resp.Error)
			}
		})
	}
}

func TestAPI_AdminRoutes_RequireAdmin(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	if w := f.do(t, http.MethodGet, "/api/rides/admin/count", f.rider.ID, nil); w.Code != http.StatusForbidden {
		t.Errorf("rider: expected 403, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/rides/admin/count", f.admin.ID, nil); w.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", w.Code)
	}
}

func TestAPI_SessionRejectsBadToken(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	w := f.do(t, http.MethodPost, "/api/auth/session", "", map[string]string{"idToken": "bogus"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/auth/session", "", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing idToken: expected 400, got %d", w.Code)
	}
}

// ──────────────────────────────────────────────
// 2. RIDE FLOW OVER HTTP
// ──────────────────────────────────────────────

func TestAPI_RideFlow(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	w := f.do(t, http.MethodPost, "/api/rides/request", f.rider.ID, testRideBody)
	if w.Code != http.StatusOK {
		t.Fatalf("request: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var requested handler.RequestRideResponse
	decode(t, w, &requested)
	if !requested.Success || requested.RideID == "" || requested.Ride.Status != "searching" {
		t.Fatalf("unexpected request response: %+v", requested)
	}
	if requested.Ride.Fare != 216 {
		t.Errorf("expected fare 216, got %v", requested.Ride.Fare)
	}
	rideID := requested.RideID

	w = f.do(t, http.MethodPost, "/api/rides/"+rideID+"/accept", f.driver.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The driver's view hides the code the rider reads out.
	w = f.do(t, http.MethodGet, "/api/rides/current", f.driver.ID, nil)
	var driverView handler.RideResponse
	decode(t, w, &driverView)
	if driverView.OTP != "" {
		t.Error("driver must not see the OTP")
	}
	if driverView.RiderName != f.rider.Name {
		t.Errorf("expected rider name %q, got %q", f.rider.Name, driverView.RiderName)
	}

	w = f.do(t, http.MethodGet, "/api/rides/current", f.rider.ID, nil)
	var riderView handler.RideResponse
	decode(t, w, &riderView)
	if len(riderView.OTP) != 4 {
		t.Fatalf("rider should see the OTP, got %q", riderView.OTP)
	}
	if riderView.Driver == nil || riderView.Driver.Name != f.driver.Name {
		t.Errorf("expected driver summary, got %+v", riderView.Driver)
	}

	w = f.do(t, http.MethodPost, "/api/rides/"+rideID+"/start", f.driver.ID, map[string]string{"otp": wrongOTP(riderView.OTP)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong otp: expected 400, got %d", w.Code)
	}
	var errResp handler.ErrorResponse
	decode(t, w, &errResp)
	if errResp.Error != "Invalid OTP" {
		t.Errorf("expected Invalid OTP, got %q", errResp.Error)
	}

	w = f.do(t, http.MethodPost, "/api/rides/"+rideID+"/start", f.driver.ID, map[string]string{"otp": riderView.OTP})
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/rides/"+rideID+"/complete", f.driver.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var completed handler.CompleteRideResponse
	decode(t, w, &completed)
	if completed.Stats.Driver.TotalEarnings != 216 || completed.Ride.PaymentStatus != string(domain.PaymentStatusCompleted) {
		t.Errorf("unexpected completion: %+v", completed)
	}

	w = f.do(t, http.MethodPost, "/api/rides/"+rideID+"/rate", f.rider.ID, map[string]any{"rating": 5, "feedback": "great"})
	if w.Code != http.StatusOK {
		t.Fatalf("rate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/api/rides/"+rideID+"/rate", f.rider.ID, map[string]any{"rating": 5})
	if w.Code != http.StatusConflict {
		t.Errorf("second rating: expected 409, got %d", w.Code)
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())
	ride := f.requestRide(t, "cash")

	testCases := []struct {
		name     string
		method   string
		path     string
		token    string
		body     any
		wantCode int
	}{
		{"current without ride", http.MethodGet, "/api/rides/current", f.driver.ID, nil, http.StatusNotFound},
		{"unknown ride", http.MethodGet, "/api/rides/nope", f.rider.ID, nil, http.StatusNotFound},
		{"stranger reading ride", http.MethodGet, "/api/rides/" + ride.ID, f.driver.ID, nil, http.StatusNotFound},
		{"rider accepting", http.MethodPost, "/api/rides/" + ride.ID + "/accept", f.rider.ID, nil, http.StatusForbidden},
		{"complete before accept", http.MethodPost, "/api/rides/" + ride.ID + "/complete", f.driver.ID, nil, http.StatusForbidden},
		{"rating out of range", http.MethodPost, "/api/rides/" + ride.ID + "/rate", f.rider.ID, map[string]int{"rating": 9}, http.StatusBadRequest},
		{"start without otp", http.MethodPost, "/api/rides/" + ride.ID + "/start", f.driver.ID, map[string]string{}, http.StatusBadRequest},
		{"bad pickup", http.MethodPost, "/api/rides/request", f.rider.ID, map[string]any{
			"pickup":      map[string]any{"lat": 100, "lng": 77},
			"destination": map[string]any{"lat": 12, "lng": 77},
		}, http.StatusBadRequest},
		{"rider posting location", http.MethodPost, "/api/driver/location", f.rider.ID, map[string]any{"lat": 12, "lng": 77}, http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, tc.method, tc.path, tc.token, tc.body)
			if w.Code != tc.wantCode {
				t.Errorf("expected %d, got %d: %s", tc.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestAPI_DriverLocation(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	bodies := []any{
		map[string]any{"location": map[string]any{"lat": 12.95, "lng": 77.61}},
		map[string]any{"lat": 12.96, "lng": 77.62},
	}
	for i, body := range bodies {
		w := f.do(t, http.MethodPost, "/api/driver/location", f.driver.ID, body)
		if w.Code != http.StatusOK {
			t.Fatalf("body %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	if got := f.accounts.GetAccount(f.driver.ID).CurrentLocation; got == nil || got.Lat != 12.96 {
		t.Errorf("expected latest location stored, got %+v", got)
	}
}

// ──────────────────────────────────────────────
// 3. CROSS-CUTTING MIDDLEWARE
// ──────────────────────────────────────────────

func TestAPI_RateLimit(t *testing.T) {
	t.Parallel()

	limits := defaultLimits()
	limits.APIRequests = 2
	f := newAPIFixture(t, limits)

	for i := 0; i < 2; i++ {
		if w := f.do(t, http.MethodGet, "/api/health", "", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := f.do(t, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	var resp handler.ErrorResponse
	decode(t, w, &resp)
	if resp.Error != "Too many requests, please slow down" {
		t.Errorf("unexpected message %q", resp.Error)
	}

	// Liveness is outside the API limit.
	if w := f.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", w.Code)
	}
}

func TestAPI_Headers(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("expected request id echoed, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected local origin allowed, got %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
}

func TestAPI_IdempotentReplay(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	sendTo := func(path, token, key string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(testRideBody)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}
	send := func(token, key string) *httptest.ResponseRecorder {
		return sendTo("/api/rides/request", token, key)
	}

	first := send(f.rider.ID, "req-1")
	if first.Code != http.StatusOK {
		t.Fatalf("first: expected 200, got %d: %s", first.Code, first.Body.String())
	}
	second := send(f.rider.ID, "req-1")
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay, got %d: %s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected replay header")
	}
	if n := f.rides.CountRides(); n != 1 {
		t.Errorf("expected one ride stored, got %d", n)
	}

	// Keys are per account.
	other := f.addAccount("rider-2", domain.RoleRider)
	if w := send(other.ID, "req-1"); w.Header().Get("Idempotent-Replayed") != "" {
		t.Error("another account must not see the replay")
	}
	if n := f.rides.CountRides(); n != 2 {
		t.Errorf("expected two rides stored, got %d", n)
	}

	// Keys are per route: the same key on another endpoint runs the handler.
	w := sendTo("/api/rides/clear-active", f.rider.ID, "req-1")
	if w.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("a key reused on another route must not replay, got %s", w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"count":1`)) {
		t.Errorf("expected clear-active to run, got %s", w.Body.String())
	}
}

func TestAPI_HealthReportsDependencies(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	w := f.do(t, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp handler.HealthResponse
	decode(t, w, &resp)
	if !resp.OK || resp.Database.Status != "ok" {
		t.Errorf("expected healthy database, got %+v", resp)
	}
	if resp.Redis.Status != "disabled" {
		t.Errorf("expected redis disabled, got %q", resp.Redis.Status)
	}
	if resp.Sockets != 0 {
		t.Errorf("expected no open sockets, got %d", resp.Sockets)
	}
}

func TestAPI_AvatarAndLinkPhone(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	w := f.do(t, http.MethodPut, "/api/auth/avatar", f.rider.ID, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty avatar, got %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPut, "/api/auth/avatar", f.rider.ID, map[string]string{"avatar": "https://cdn.example.com/a.png"})
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"avatar":"https://cdn.example.com/a.png"`)) {
		t.Fatalf("unexpected avatar response %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/auth/link-phone", f.rider.ID, map[string]string{"phoneNumber": "+919800000001"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}
	emailToken := providerToken(t, "uid-x", "x@example.com", "", time.Now().Add(time.Hour))
	w = f.do(t, http.MethodPost, "/api/auth/link-phone", f.rider.ID, map[string]string{"phoneIdToken": emailToken})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-phone token, got %d", w.Code)
	}

	phoneToken := providerToken(t, "uid-phone", "", "+919800000001", time.Now().Add(time.Hour))
	w = f.do(t, http.MethodPost, "/api/auth/link-phone", f.rider.ID, map[string]string{"phoneIdToken": phoneToken})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		User handler.UserResponse `json:"user"`
	}
	decode(t, w, &resp)
	if resp.User.Phone != "+919800000001" || !resp.User.PhoneVerified {
		t.Errorf("expected verified phone, got %+v", resp.User)
	}
}

func TestAPI_SupportChat(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, defaultLimits())

	w := f.do(t, http.MethodPost, "/api/support/chats/create", f.rider.ID, map[string]string{"message": "Lost my bag"})
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Chat struct {
			ChatID       string `json:"chatId"`
			TicketNumber string `json:"ticketNumber"`
		} `json:"chat"`
	}
	decode(t, w, &created)
	if created.Chat.TicketNumber != "TKT001000" {
		t.Errorf("unexpected ticket %q", created.Chat.TicketNumber)
	}
	chatPath := "/api/support/chats/" + created.Chat.ChatID

	if w := f.do(t, http.MethodPost, chatPath+"/messages", f.admin.ID, map[string]string{"message": "Checking with the driver"}); w.Code != http.StatusOK {
		t.Fatalf("staff reply: %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodGet, chatPath, f.driver.ID, nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another account, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/support/chats", f.rider.ID, nil)
	var list struct {
		Chats []handler.ChatSummary `json:"chats"`
	}
	decode(t, w, &list)
	if len(list.Chats) != 1 || list.Chats[0].UnreadCount == nil || *list.Chats[0].UnreadCount != 1 {
		t.Fatalf("unexpected listing: %s", w.Body.String())
	}

	if w := f.do(t, http.MethodPost, chatPath+"/end", f.rider.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("end: %d %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, chatPath+"/messages", f.rider.ID, map[string]string{"message": "hello?"})
	if w.Code != http.StatusBadRequest || !bytes.Contains(w.Body.Bytes(), []byte("Cannot send messages to ended chats")) {
		t.Errorf("expected 400 for ended chat, got %d: %s", w.Code, w.Body.String())
	}

	if w := f.do(t, http.MethodGet, "/api/support/admin/chats", f.rider.ID, nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin listing, got %d", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/support/admin/chats?status=ended", f.admin.ID, nil)
	decode(t, w, &list)
	if len(list.Chats) != 1 || list.Chats[0].MessageCount == nil || *list.Chats[0].MessageCount != 2 || list.Chats[0].UserID != f.rider.ID {
		t.Errorf("unexpected staff listing: %s", w.Body.String())
	}
	if w := f.do(t, http.MethodGet, "/api/support/chats/missing", f.rider.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown chat, got %d", w.Code)
	}
}
