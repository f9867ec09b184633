package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/ledger"
	"escrowline/internal/migrate"
)

const (
	testOwner      = "0xowner"
	testTreasury   = "0xtreasury"
	testClient     = "0xalice"
	testFreelancer = "0xbob"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default(testOwner, testTreasury)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := ledger.New(conn, cfg)
	frozen := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	l.Now = frozen
	l.Events.Now = frozen
	if _, err := l.Init(context.Background()); err != nil {
		t.Fatalf("init ledger: %v", err)
	}
	handler, err := New(Config{
		Ledger:   l,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyAddressHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asAddr(address string) map[string]string {
	return map[string]string{"X-Address": address}
}

func TestEscrowWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":    "Ship feature",
		"amount":   2_000_000_000,
		"deadline": "2024-02-01T00:00:00Z",
	}, asAddr(testClient))
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", createRes.StatusCode, string(data))
	}
	var created domain.Project
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.ID != 0 || created.Status != domain.StatusOpen {
		t.Fatalf("created = %+v", created)
	}

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/accept", map[string]any{}, asAddr(testFreelancer))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/fund", map[string]any{
		"paid_amount": 2_000_000_000,
	}, asAddr(testClient))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fund status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/start", map[string]any{}, asAddr(testFreelancer))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/submit", map[string]any{
		"deliverable_uri": "ipfs://work",
	}, asAddr(testFreelancer))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/approve", map[string]any{}, asAddr(testClient))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(body))
	}
	var completed domain.Project
	if err := json.Unmarshal(body, &completed); err != nil {
		t.Fatalf("unmarshal completed: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/reputation/"+testFreelancer, nil, asAddr(testClient))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reputation status %d: %s", res.StatusCode, string(body))
	}
	var rep domain.Reputation
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatalf("unmarshal reputation: %v", err)
	}
	if rep.CompletedProjects != 1 || rep.Karma != 100 {
		t.Fatalf("reputation = %+v", rep)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":    "x",
		"amount":   1_000_000_000,
		"deadline": "2024-02-01T00:00:00Z",
	}, asAddr(testClient))
	var created domain.Project
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/accept", map[string]any{}, asAddr(testFreelancer))

	// wrong payer gets 403 with the error envelope
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/fund", map[string]any{
		"paid_amount": 1_000_000_000,
	}, asAddr(testFreelancer))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("fund as freelancer status %d: %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}

	// wrong amount gets 400 incorrect_payment_amount
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/fund", map[string]any{
		"paid_amount": 1,
	}, asAddr(testClient))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("underpay status %d: %s", res.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "incorrect_payment_amount" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}

	// missing project gets 404
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/99", nil, asAddr(testClient))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status %d: %s", res.StatusCode, string(body))
	}
}

// The transfer and event listings take an optional project_id query
// filter; both the filtered and unfiltered forms must serve.
func TestTransferAndEventFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":    "Ship feature",
		"amount":   2_000_000_000,
		"deadline": "2024-02-01T00:00:00Z",
	}, asAddr(testClient))
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/accept", map[string]any{}, asAddr(testFreelancer))
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/fund", map[string]any{
		"paid_amount": 2_000_000_000,
	}, asAddr(testClient))
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/start", map[string]any{}, asAddr(testFreelancer))
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/submit", map[string]any{
		"deliverable_uri": "ipfs://work",
	}, asAddr(testFreelancer))
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/0/approve", map[string]any{}, asAddr(testClient))

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/transfers?project_id=0", nil, asAddr(testClient))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filtered transfers status %d: %s", res.StatusCode, string(body))
	}
	var transfers []domain.Transfer
	if err := json.Unmarshal(body, &transfers); err != nil {
		t.Fatalf("unmarshal transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("transfers = %d, want payout and fee", len(transfers))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/transfers", nil, asAddr(testClient))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unfiltered transfers status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?project_id=0", nil, asAddr(testClient))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filtered events status %d: %s", res.StatusCode, string(body))
	}
	var events []domain.Event
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("no events for project 0")
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events", nil, asAddr(testClient))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unfiltered events status %d: %s", res.StatusCode, string(body))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no auth status %d", res.StatusCode)
	}

	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestDevLoginAndJWT(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"address": testClient,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(body))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("empty token")
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(body, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.Address != testClient || who.Source != "jwt" {
		t.Fatalf("me = %+v", who)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/keys", map[string]any{
		"name": "ci",
	}, asAddr(testClient))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(body))
	}
	var created APIKeyResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" {
		t.Fatalf("plaintext key not returned on create")
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": created.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(body))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(body, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.Address != testClient || who.Source != "api_key" {
		t.Fatalf("me = %+v", who)
	}
}
