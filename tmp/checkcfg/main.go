package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"worktrade/internal/app"
	"worktrade/internal/db"
	"worktrade/internal/domain"
	"worktrade/internal/server"
)

// Throwaway smoke check: buyer posts, dev submits, buyer pays, buyer downloads.
func main() {
	workspace := "/tmp/worktrade-check"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	ctx := context.Background()
	env, err := app.Open(ctx, workspace)
	if err != nil {
		panic(err)
	}
	defer env.Close()

	tx, err := env.DB.BeginTx(ctx, nil)
	if err != nil {
		panic(err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, a := range []domain.Actor{
		{ID: "buyer-1", Role: "buyer", CreatedAt: now},
		{ID: "dev-1", Role: "developer", CreatedAt: now},
	} {
		if err := env.Engine.Repo.EnsureActor(ctx, tx, a); err != nil {
			panic(err)
		}
	}
	if err := tx.Commit(); err != nil {
		panic(err)
	}

	jwtSecret := "test-secret"
	h, err := server.New(server.Config{
		Engine:   env.Engine,
		BasePath: "/v0",
		Auth:     server.AuthConfig{JWTSecret: jwtSecret},
	})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	buyerToken, _ := server.SignToken(jwtSecret, "buyer-1", "buyer", time.Hour)
	devToken, _ := server.SignToken(jwtSecret, "dev-1", "developer", time.Hour)

	var project map[string]any
	post(ts.URL+"/v0/projects", buyerToken, map[string]any{
		"title":       "Smoke test project",
		"hourly_rate": 50,
	}, &project)
	projectID := project["id"].(string)

	var task map[string]any
	post(ts.URL+"/v0/tasks", buyerToken, map[string]any{
		"project_id":   projectID,
		"developer_id": "dev-1",
		"title":        "Smoke task",
	}, &task)
	taskID := task["id"].(string)

	post(ts.URL+"/v0/tasks/"+taskID+"/start", devToken, nil, nil)
	post(ts.URL+"/v0/tasks/"+taskID+"/submit", devToken, map[string]any{
		"archive":          []byte("smoke archive"),
		"time_spent_hours": 1.5,
	}, nil)

	var payment map[string]any
	post(ts.URL+"/v0/tasks/"+taskID+"/pay", buyerToken, nil, &payment)
	fmt.Printf("payment: amount=%v currency=%v\n", payment["amount"], payment["currency"])

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v0/tasks/"+taskID+"/solution", nil)
	req.Header.Set("Authorization", "Bearer "+buyerToken)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var sol map[string]any
	_ = json.NewDecoder(res.Body).Decode(&sol)
	fmt.Printf("download: status=%d size=%v\n", res.StatusCode, sol["size"])
}

func post(url, token string, body, out any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req, _ := http.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		var e any
		_ = json.NewDecoder(res.Body).Decode(&e)
		panic(fmt.Sprintf("POST %s -> %d: %v", url, res.StatusCode, e))
	}
	if out != nil {
		_ = json.NewDecoder(res.Body).Decode(out)
	}
}
