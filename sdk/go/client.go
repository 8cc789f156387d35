package worktradesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Worktrade HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project is a buyer posting.
type Project struct {
	ID         string   `json:"id"`
	BuyerID    string   `json:"buyer_id"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags,omitempty"`
	HourlyRate float64  `json:"hourly_rate"`
	Status     string   `json:"status"`
	CreatedAt  string   `json:"created_at"`
}

// Proposal is a developer pitch on a project.
type Proposal struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	DeveloperID  string  `json:"developer_id"`
	ProposedRate float64 `json:"proposed_rate"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
}

// Task is a unit of assigned work.
type Task struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	DeveloperID    string   `json:"developer_id"`
	Title          string   `json:"title"`
	HourlyRate     float64  `json:"hourly_rate"`
	Status         string   `json:"status"`
	TimeSpentHours *float64 `json:"time_spent_hours,omitempty"`
}

// Payment records the settlement of a submitted task.
type Payment struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	BuyerID     string  `json:"buyer_id"`
	DeveloperID string  `json:"developer_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	CreatedAt   string  `json:"created_at"`
}

// Solution carries the downloaded archive.
type Solution struct {
	TaskID  string `json:"task_id"`
	Handle  string `json:"handle"`
	Size    int    `json:"size"`
	Content []byte `json:"content"`
}

// Event is a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps project listings with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateProject posts a project on behalf of a buyer.
func (c *Client) CreateProject(ctx context.Context, title string, hourlyRate float64, tags []string) (Project, error) {
	body := map[string]any{
		"title":       title,
		"hourly_rate": hourlyRate,
		"tags":        tags,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// Projects returns a page of open projects.
func (c *Client) Projects(ctx context.Context, limit int, cursor string) (PaginatedProjects, error) {
	endpoint := "v0/projects" + pageQuery(limit, cursor)
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitProposal pitches on an open project.
func (c *Client) SubmitProposal(ctx context.Context, projectID string, proposedRate float64, coverLetter string) (Proposal, error) {
	body := map[string]any{
		"project_id":    projectID,
		"proposed_rate": proposedRate,
		"cover_letter":  coverLetter,
	}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "v0/proposals", body, &resp)
	return resp, err
}

// AcceptProposal accepts a pending proposal, closing its project.
func (c *Client) AcceptProposal(ctx context.Context, proposalID string) (Proposal, error) {
	var resp Proposal
	endpoint := fmt.Sprintf("v0/proposals/%s/accept", url.PathEscape(proposalID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AssignTask creates a task on a project for a developer.
func (c *Client) AssignTask(ctx context.Context, projectID, developerID, title string) (Task, error) {
	body := map[string]any{
		"project_id":   projectID,
		"developer_id": developerID,
		"title":        title,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// StartTask moves an assigned task to in_progress.
func (c *Client) StartTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s/start", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// SubmitTask uploads the solution archive and the hours spent.
func (c *Client) SubmitTask(ctx context.Context, taskID string, archive []byte, timeSpentHours float64) (Task, error) {
	body := map[string]any{
		"archive":          archive,
		"time_spent_hours": timeSpentHours,
	}
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s/submit", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// PayTask settles a submitted task.
func (c *Client) PayTask(ctx context.Context, taskID string) (Payment, error) {
	var resp Payment
	endpoint := fmt.Sprintf("v0/tasks/%s/pay", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// DownloadSolution fetches the archive of a paid task.
func (c *Client) DownloadSolution(ctx context.Context, taskID string) (Solution, error) {
	var resp Solution
	endpoint := fmt.Sprintf("v0/tasks/%s/solution", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events (admin).
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing (admin).
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events" + pageQuery(limit, cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func pageQuery(limit int, cursor string) string {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if len(params) == 0 {
		return ""
	}
	return "?" + params.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
