package domain

// Actor roles.
const (
	RoleBuyer     = "buyer"
	RoleDeveloper = "developer"
	RoleAdmin     = "admin"
)

// Project statuses.
const (
	ProjectOpen   = "open"
	ProjectClosed = "closed"
)

// Proposal statuses.
const (
	ProposalPending   = "pending"
	ProposalAccepted  = "accepted"
	ProposalRejected  = "rejected"
	ProposalWithdrawn = "withdrawn"
)

// Task statuses.
const (
	TaskAssigned   = "assigned"
	TaskInProgress = "in_progress"
	TaskSubmitted  = "submitted"
	TaskPaid       = "paid"
)

type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role" enum:"buyer,developer,admin"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
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

type Proposal struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	DeveloperID    string   `json:"developer_id"`
	CoverLetter    string   `json:"cover_letter,omitempty"`
	ProposedRate   float64  `json:"proposed_rate"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Status         string   `json:"status" enum:"pending,accepted,rejected,withdrawn"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

type Task struct {
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

type Payment struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	BuyerID     string  `json:"buyer_id"`
	DeveloperID string  `json:"developer_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DashboardStats aggregates platform-wide numbers for admins.
type DashboardStats struct {
	TotalBuyers     int            `json:"total_buyers"`
	TotalDevelopers int            `json:"total_developers"`
	TotalProjects   int            `json:"total_projects"`
	OpenProjects    int            `json:"open_projects"`
	TotalTasks      int            `json:"total_tasks"`
	TasksByStatus   map[string]int `json:"tasks_by_status"`
	TotalPayments   int            `json:"total_payments"`
	PendingTasks    int            `json:"pending_tasks"`
	TotalHoursPaid  float64        `json:"total_hours_paid"`
	TotalRevenue    float64        `json:"total_revenue"`
}
