package server

import (
	"bytes"
	"encoding/json"
	"io"
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"

	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/engine"
	"pactline/internal/migrate"
)

const (
	testPactID = "pact-1"
	testPartyA = "alice"
	testPartyB = "bob"
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
	cfg := config.Default(testPactID, testPartyA, testPartyB)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitPact(context.Background(), cfg, "", "tester"); err != nil {
		t.Fatalf("init pact: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
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

func asActor(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func TestGateWithdrawalOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/pacts/" + testPactID

	res, data := doJSON(t, client, http.MethodPost, base+"/treasury/deposits", map[string]any{
		"amount": 500,
	}, asActor(testPartyA))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("deposit status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/operations", map[string]any{
		"target":  "treasury.withdraw",
		"payload": `{"recipient":"carol","amount":200}`,
	}, asActor(testPartyA))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose status %d: %s", res.StatusCode, string(data))
	}
	var op OperationResponse
	if err := json.Unmarshal(data, &op); err != nil {
		t.Fatalf("unmarshal operation: %v", err)
	}
	opURL := base + "/operations/" + itoa(op.ID)

	// One approval is not enough.
	if res, data = doJSON(t, client, http.MethodPost, opURL+"/approve", nil, asActor(testPartyA)); res.StatusCode != http.StatusOK {
		t.Fatalf("approve a status %d: %s", res.StatusCode, string(data))
	}
	if res, data = doJSON(t, client, http.MethodPost, opURL+"/execute", nil, asActor(testPartyA)); res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before second approval, got %d: %s", res.StatusCode, string(data))
	}

	if res, data = doJSON(t, client, http.MethodPost, opURL+"/approve", nil, asActor(testPartyB)); res.StatusCode != http.StatusOK {
		t.Fatalf("approve b status %d: %s", res.StatusCode, string(data))
	}
	if res, data = doJSON(t, client, http.MethodPost, opURL+"/execute", nil, asActor(testPartyB)); res.StatusCode != http.StatusOK {
		t.Fatalf("execute status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/treasury", nil, asActor(testPartyA))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, string(data))
	}
	var sum TreasuryResponse
	if err := json.Unmarshal(data, &sum); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if sum.Balance != 300 {
		t.Fatalf("balance = %d, want 300", sum.Balance)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/accounts/carol", nil, asActor(testPartyA))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("account status %d: %s", res.StatusCode, string(data))
	}
	var acct AccountResponse
	_ = json.Unmarshal(data, &acct)
	if acct.Balance != 200 {
		t.Fatalf("carol balance = %d, want 200", acct.Balance)
	}
}

func TestAuthRequiredAndDevLogin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/pacts", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q, want unauthorized", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": testPartyA,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("empty dev token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != testPartyA || me.Source != "jwt" {
		t.Fatalf("me = %+v, want actor %s via jwt", me, testPartyA)
	}

	// Garbage bearer token is rejected.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, string(data))
	}
}

func TestErrorEnvelopes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/pacts/" + testPactID

	// Non-party may not propose gate operations.
	res, data := doJSON(t, client, http.MethodPost, base+"/operations", map[string]any{
		"target":  "treasury.withdraw",
		"payload": `{"recipient":"x","amount":1}`,
	}, asActor("mallory"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-party, got %d: %s", res.StatusCode, string(data))
	}

	// Gate owner overdrawing hits the funds check.
	res, data = doJSON(t, client, http.MethodPost, base+"/treasury/withdrawals", map[string]any{
		"recipient": "carol",
		"amount":    10,
	}, asActor("gate"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for overdraw, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "insufficient_funds" {
		t.Fatalf("error code = %q, want insufficient_funds", envelope.Error.Code)
	}

	// Unknown pact.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/pacts/nope", nil, asActor(testPartyA))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown pact, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_id": testPartyB,
		"name":     "ci",
	}, asActor(testPartyA))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" {
		t.Fatalf("raw key missing from create response")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": created.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != testPartyB || me.Source != "api_key" {
		t.Fatalf("me = %+v, want actor %s via api_key", me, testPartyB)
	}

	// Raw key is never echoed on list.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/apikeys", nil, asActor(testPartyA))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(data))
	}
	var keys []APIKeyResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(keys) != 1 || keys[0].Key != "" {
		t.Fatalf("expected one key without raw material, got %+v", keys)
	}
}

func TestTaskEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/pacts/" + testPactID

	res, data := doJSON(t, client, http.MethodPost, base+"/tasks", map[string]any{
		"title":       "Ship feature",
		"description": "End to end",
	}, asActor(testPartyA))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != "created" {
		t.Fatalf("status = %s, want created", created.Status)
	}

	// Starting an unassigned task is a state error.
	res, data = doJSON(t, client, http.MethodPost, base+"/tasks/"+itoa(created.ID)+"/start", nil, asActor(testPartyB))
	if res.StatusCode != http.StatusUnauthorized && res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 401/409 starting unassigned task, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/tasks?creator="+testPartyA, nil, asActor(testPartyA))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, string(data))
	}
	var items []TaskResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one task, got %d", len(items))
	}
}

func TestEventPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/pacts/" + testPactID

	for i := 0; i < 5; i++ {
		res, data := doJSON(t, client, http.MethodPost, base+"/treasury/deposits", map[string]any{
			"amount": 10,
		}, asActor(testPartyA))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("deposit %d status %d: %s", i, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, base+"/events?limit=3", nil, asActor(testPartyA))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 3 || page.NextCursor == "" {
		t.Fatalf("expected 3 items and a cursor, got %d items cursor %q", len(page.Items), page.NextCursor)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?limit=10&cursor="+page.NextCursor, nil, asActor(testPartyA))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var rest paginatedEvents
	if err := json.Unmarshal(data, &rest); err != nil {
		t.Fatalf("unmarshal second page: %v", err)
	}
	// 5 deposits + pact.init, minus the first page.
	if len(rest.Items) != 3 {
		t.Fatalf("expected 3 remaining events, got %d", len(rest.Items))
	}
	for _, evt := range page.Items {
		for _, other := range rest.Items {
			if evt.ID == other.ID {
				t.Fatalf("event %d appeared on both pages", evt.ID)
			}
		}
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
