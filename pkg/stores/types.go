package stores

import (
	"context"
	"time"
)

// DeploymentStatus is the persisted terminal status of a deployment run.
type DeploymentStatus string

const (
	DeploymentStatusSucceeded DeploymentStatus = "succeeded"
	DeploymentStatusDegraded  DeploymentStatus = "degraded"
	DeploymentStatusFailed    DeploymentStatus = "failed"
)

// Deployment is one persisted deployment run.
type Deployment struct {
	ID             string           `json:"id"`
	Host           string           `json:"host"`
	Blueprint      string           `json:"blueprint"`
	Family         string           `json:"family"`
	Status         DeploymentStatus `json:"status"`
	Installed      int              `json:"installed"`
	Skipped        int              `json:"skipped"`
	Failed         int              `json:"failed"`
	Configured     int              `json:"configured"`
	ConfigFailed   int              `json:"config_failed"`
	Verified       bool             `json:"verified"`
	VerifyAttempts int              `json:"verify_attempts"`
	Summary        string           `json:"summary"` // JSON blob of the full run summary
	Error          *string          `json:"error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Store is the persistence layer for deployment history.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	ListDeployments(ctx context.Context, limit, offset int) ([]*Deployment, error)
	ListDeploymentsByHost(ctx context.Context, host string, limit, offset int) ([]*Deployment, error)
	DeleteDeployment(ctx context.Context, id string) error

	HealthCheck(ctx context.Context) error
}
