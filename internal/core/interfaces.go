package core

import (
	"context"
	"time"
)

// Service defines the lifecycle contract shared by long-running components
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ServiceHealth
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus enumerates service health levels
type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	StatusWarning HealthStatus = "warning"
	StatusError   HealthStatus = "error"
	StatusStopped HealthStatus = "stopped"
)
