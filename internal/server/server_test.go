package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"worktrade/internal/blob"
	"worktrade/internal/config"
	"worktrade/internal/db"
	"worktrade/internal/domain"
	"worktrade/internal/engine"
	"worktrade/internal/migrate"
)

const testJWTSecret = "server-test-secret"

type testServer struct {
	URL    string
	engine engine.Engine
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
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := blob.NewFSStore(db.BlobDir(workspace), 1<<20)
	e := engine.New(conn, store, config.Default())

	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, a := range []domain.Actor{
		{ID: "buyer-1", Name: "Ada", Role: "buyer", CreatedAt: now},
		{ID: "buyer-2", Name: "Grace", Role: "buyer", CreatedAt: now},
		{ID: "dev-1", Name: "Linus", Role: "developer", CreatedAt: now},
		{ID: "admin-1", Name: "Root", Role: "admin", CreatedAt: now},
	} {
		if err := e.Repo.EnsureActor(ctx, tx, a); err != nil {
			t.Fatalf("seed actor %s: %v", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit seed: %v", err)
	}

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
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
		engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func as(actorID string) map[string]string {
	return map[string]string{"X-Actor-Id": actorID}
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

func createProject(t *testing.T, srv *testServer, buyer string) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":       "Build a CLI",
		"hourly_rate": 80,
		"tags":        []string{"go", "cli"},
	}, as(buyer))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func assignTask(t *testing.T, srv *testServer, buyer, projectID, developer string) TaskResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"project_id":   projectID,
		"developer_id": developer,
		"title":        "Implement parser",
	}, as(buyer))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("assign task status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return task
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	healthRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", healthRes.StatusCode)
	}
}

func TestJWTAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token, err := SignToken(testJWTSecret, "buyer-1", "buyer", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/actors/me", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("whoami status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal whoami: %v", err)
	}
	if who.ActorID != "buyer-1" || who.Role != "buyer" || who.Source != "jwt" {
		t.Fatalf("unexpected whoami: %+v", who)
	}

	badRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/actors/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", badRes.StatusCode)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "buyer-1")
	if p.Status != "open" {
		t.Fatalf("expected open project, got %s", p.Status)
	}

	devRes, devBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":       "Nope",
		"hourly_rate": 10,
	}, as("dev-1"))
	if devRes.StatusCode != http.StatusForbidden {
		t.Fatalf("developer posting a project should be 403, got %d: %s", devRes.StatusCode, string(devBody))
	}

	otherRes, otherBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/close", nil, as("buyer-2"))
	if otherRes.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner close should be 403, got %d: %s", otherRes.StatusCode, string(otherBody))
	}

	closeRes, closeBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/close", nil, as("buyer-1"))
	if closeRes.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", closeRes.StatusCode, string(closeBody))
	}

	againRes, againBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/close", nil, as("buyer-1"))
	if againRes.StatusCode != http.StatusConflict {
		t.Fatalf("double close should be 409, got %d: %s", againRes.StatusCode, string(againBody))
	}
}

func TestProposalAcceptEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "buyer-1")

	propRes, propBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/proposals", map[string]any{
		"project_id":    p.ID,
		"proposed_rate": 70,
		"cover_letter":  "I can do this",
	}, as("dev-1"))
	if propRes.StatusCode != http.StatusCreated {
		t.Fatalf("submit proposal status %d: %s", propRes.StatusCode, string(propBody))
	}
	var prop ProposalResponse
	if err := json.Unmarshal(propBody, &prop); err != nil {
		t.Fatalf("unmarshal proposal: %v", err)
	}

	dupRes, dupBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/proposals", map[string]any{
		"project_id":    p.ID,
		"proposed_rate": 65,
	}, as("dev-1"))
	if dupRes.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate live proposal should be 409, got %d: %s", dupRes.StatusCode, string(dupBody))
	}

	accRes, accBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/proposals/"+prop.ID+"/accept", nil, as("buyer-1"))
	if accRes.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", accRes.StatusCode, string(accBody))
	}
	var accepted ProposalResponse
	_ = json.Unmarshal(accBody, &accepted)
	if accepted.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}

	projRes, projBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil, as("buyer-1"))
	if projRes.StatusCode != http.StatusOK {
		t.Fatalf("get project status %d", projRes.StatusCode)
	}
	var proj ProjectResponse
	_ = json.Unmarshal(projBody, &proj)
	if proj.Status != "closed" {
		t.Fatalf("accepting a proposal should close the project, got %s", proj.Status)
	}
}

func TestTaskFlowAndPaymentGate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	p := createProject(t, srv, "buyer-1")
	task := assignTask(t, srv, "buyer-1", p.ID, "dev-1")

	// Solution is gated until payment, starting with the missing blob.
	gateRes, gateBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/solution", nil, as("buyer-1"))
	if gateRes.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("unpaid download should be 402, got %d: %s", gateRes.StatusCode, string(gateBody))
	}

	startRes, startBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/start", nil, as("dev-1"))
	if startRes.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", startRes.StatusCode, string(startBody))
	}

	archive := []byte("solution archive")
	subRes, subBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/submit", map[string]any{
		"archive":          base64.StdEncoding.EncodeToString(archive),
		"time_spent_hours": 2.5,
	}, as("dev-1"))
	if subRes.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", subRes.StatusCode, string(subBody))
	}

	payRes, payBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/pay", nil, as("buyer-1"))
	if payRes.StatusCode != http.StatusCreated {
		t.Fatalf("pay status %d: %s", payRes.StatusCode, string(payBody))
	}
	var payment PaymentResponse
	if err := json.Unmarshal(payBody, &payment); err != nil {
		t.Fatalf("unmarshal payment: %v", err)
	}
	if payment.Amount != 80*2.5 {
		t.Fatalf("expected amount 200, got %v", payment.Amount)
	}

	doubleRes, doubleBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/pay", nil, as("buyer-1"))
	if doubleRes.StatusCode != http.StatusConflict {
		t.Fatalf("double pay should be 409, got %d: %s", doubleRes.StatusCode, string(doubleBody))
	}

	wrongRes, wrongBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/solution", nil, as("buyer-2"))
	if wrongRes.StatusCode != http.StatusForbidden {
		t.Fatalf("other buyer download should be 403, got %d: %s", wrongRes.StatusCode, string(wrongBody))
	}

	dlRes, dlBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/solution", nil, as("buyer-1"))
	if dlRes.StatusCode != http.StatusOK {
		t.Fatalf("download status %d: %s", dlRes.StatusCode, string(dlBody))
	}
	var sol SolutionResponse
	if err := json.Unmarshal(dlBody, &sol); err != nil {
		t.Fatalf("unmarshal solution: %v", err)
	}
	if !bytes.Equal(sol.Content, archive) {
		t.Fatalf("downloaded archive does not match upload")
	}
}

func TestStatsRequiresAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stats", nil, as("buyer-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stats for buyer should be 403, got %d", res.StatusCode)
	}

	adminRes, adminBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/stats", nil, as("admin-1"))
	if adminRes.StatusCode != http.StatusOK {
		t.Fatalf("stats for admin status %d: %s", adminRes.StatusCode, string(adminBody))
	}
	var stats domain.DashboardStats
	if err := json.Unmarshal(adminBody, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.TotalBuyers != 2 {
		t.Fatalf("expected 2 buyers, got %d", stats.TotalBuyers)
	}
}

func TestAPIKeyAuthRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	keyRes, keyBody := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/actors/dev-1/api-keys", map[string]any{
		"name": "laptop",
	}, as("dev-1"))
	if keyRes.StatusCode != http.StatusCreated {
		t.Fatalf("mint key status %d: %s", keyRes.StatusCode, string(keyBody))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(keyBody, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatalf("expected plaintext key in mint response")
	}

	whoRes, whoBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/actors/me", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if whoRes.StatusCode != http.StatusOK {
		t.Fatalf("whoami via api key status %d: %s", whoRes.StatusCode, string(whoBody))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(whoBody, &who)
	if who.ActorID != "dev-1" || who.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", who)
	}

	delRes, _ := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/api-keys/"+key.ID, nil, as("dev-1"))
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d", delRes.StatusCode)
	}
	revokedRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/actors/me", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if revokedRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key should be 401, got %d", revokedRes.StatusCode)
	}
}
