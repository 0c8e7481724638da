package models

import "time"

// Health is the upstream health-check snapshot
type Health struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Service represents a managed proxy service and its runtime state
type Service struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// ConfigFile describes a configuration file on the upstream host
type ConfigFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// TunnelUser is a per-user VMess tunnel configuration
type TunnelUser struct {
	Email   string `json:"email"`
	UUID    string `json:"uuid"`
	AlterID int    `json:"alter_id"`
	Level   int    `json:"level"`
	Enabled bool   `json:"enabled"`
}

// LogChunk is a slice of the upstream log tail
type LogChunk struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
