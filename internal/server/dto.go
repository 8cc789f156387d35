package server

import (
	"encoding/json"

	"worktrade/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID             *string  `json:"id,omitempty"`
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	HourlyRate     float64  `json:"hourly_rate"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

type SubmitProposalRequest struct {
	ProjectID      string   `json:"project_id"`
	CoverLetter    *string  `json:"cover_letter,omitempty"`
	ProposedRate   float64  `json:"proposed_rate"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

type AssignTaskRequest struct {
	ProjectID   string  `json:"project_id"`
	DeveloperID string  `json:"developer_id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	HourlyRate  float64 `json:"hourly_rate,omitempty"`
}

type SubmitTaskRequest struct {
	Archive        []byte  `json:"archive" format:"byte"`
	TimeSpentHours float64 `json:"time_spent_hours"`
}

type CreateActorRequest struct {
	ID   *string `json:"id,omitempty"`
	Name string  `json:"name,omitempty"`
	Role string  `json:"role" enum:"buyer,developer,admin"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID             string   `json:"id"`
	BuyerID        string   `json:"buyer_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	HourlyRate     float64  `json:"hourly_rate"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Status         string   `json:"status" enum:"open,closed"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

type ProposalResponse struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	DeveloperID    string   `json:"developer_id"`
	CoverLetter    string   `json:"cover_letter,omitempty"`
	ProposedRate   float64  `json:"proposed_rate"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Status         string   `json:"status" enum:"pending,accepted,rejected,withdrawn"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	DeveloperID    string   `json:"developer_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	HourlyRate     float64  `json:"hourly_rate"`
	Status         string   `json:"status" enum:"assigned,in_progress,submitted,paid"`
	TimeSpentHours *float64 `json:"time_spent_hours,omitempty"`
	SolutionHandle *string  `json:"solution_handle,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
}

type PaymentResponse struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	BuyerID     string  `json:"buyer_id"`
	DeveloperID string  `json:"developer_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type SolutionResponse struct {
	TaskID  string `json:"task_id"`
	Handle  string `json:"handle"`
	Size    int    `json:"size"`
	Content []byte `json:"content" format:"byte"`
}

type ActorResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role" enum:"buyer,developer,admin"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Key       string `json:"key,omitempty"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	Source  string `json:"source"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedProposals struct {
	Items      []ProposalResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedPayments struct {
	Items      []PaymentResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func proposalResponse(p domain.Proposal) ProposalResponse {
	return ProposalResponse(p)
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse(t)
}

func paymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse(p)
}

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse(a)
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func mapProposals(items []domain.Proposal) []ProposalResponse {
	res := make([]ProposalResponse, 0, len(items))
	for _, p := range items {
		res = append(res, proposalResponse(p))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapPayments(items []domain.Payment) []PaymentResponse {
	res := make([]PaymentResponse, 0, len(items))
	for _, p := range items {
		res = append(res, paymentResponse(p))
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
