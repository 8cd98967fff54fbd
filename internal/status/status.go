// Package status provides operational readiness for the gateway and the CLI.
// It reports whether the repository is reachable and whether the boss slot
// has been claimed, without exposing any task data.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/tasked-labs/tasked/internal/storage"
)

// Component names reported by Readiness.
const (
	ComponentDatabase  = "database"
	ComponentBootstrap = "bootstrap"
)

// StatusResult represents the result of a status check.
type StatusResult struct {
	Ready            bool   `json:"ready"`
	Reason           string `json:"reason,omitempty"`
	RepositoryHealth string `json:"repositoryHealth"`
	BossDesignated   bool   `json:"bossDesignated"`
	BootstrapMode    string `json:"bootstrapMode"`
	BootstrapMessage string `json:"bootstrapMessage"`
	Version          string `json:"version"`
}

// StatusChecker provides status checking functionality.
type StatusChecker interface {
	GetStatus(ctx context.Context) (*StatusResult, error)
}

// ReadinessResult represents gateway readiness.
type ReadinessResult struct {
	Ready      bool                       `json:"ready"`
	Components map[string]ComponentStatus `json:"components"`

	// BossID is the designated boss, zero while the slot is unclaimed.
	BossID int64 `json:"bossId,omitempty"`
}

// ComponentStatus represents the status of a component.
type ComponentStatus struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// Source is what readiness needs from storage.
type Source interface {
	CheckConnectivity(ctx context.Context) error
	BootstrapState(ctx context.Context) (storage.BootstrapState, error)
}

// Checker derives readiness from a repository.
type Checker struct {
	source Source

	// explicit is true when the boss must be seeded administratively.
	explicit bool
	mode     string
	version  string
	timeout  time.Duration
}

// NewChecker creates a checker. mode is the configured bootstrap mode;
// "explicit" makes an unclaimed boss slot a readiness failure, since no
// registration can ever fill it.
func NewChecker(source Source, mode, version string) *Checker {
	return &Checker{
		source:   source,
		explicit: mode == "explicit",
		mode:     mode,
		version:  version,
		timeout:  5 * time.Second,
	}
}

// Readiness checks each component.
func (c *Checker) Readiness(ctx context.Context) *ReadinessResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := &ReadinessResult{
		Ready:      true,
		Components: make(map[string]ComponentStatus, 2),
	}

	if err := c.source.CheckConnectivity(ctx); err != nil {
		result.Ready = false
		result.Components[ComponentDatabase] = ComponentStatus{Message: "unreachable: " + err.Error()}
		result.Components[ComponentBootstrap] = ComponentStatus{Message: "unknown: database unreachable"}
		return result
	}
	result.Components[ComponentDatabase] = ComponentStatus{Ready: true, Message: "connected"}

	state, err := c.source.BootstrapState(ctx)
	switch {
	case err != nil:
		result.Ready = false
		result.Components[ComponentBootstrap] = ComponentStatus{Message: "unknown: " + err.Error()}
	case state.Claimed:
		result.BossID = state.BossID
		result.Components[ComponentBootstrap] = ComponentStatus{
			Ready:   true,
			Message: fmt.Sprintf("boss designated (user %d)", state.BossID),
		}
	case c.explicit:
		result.Ready = false
		result.Components[ComponentBootstrap] = ComponentStatus{
			Message: "no boss designated; run 'tasked bootstrap apply'",
		}
	default:
		result.Components[ComponentBootstrap] = ComponentStatus{
			Ready:   true,
			Message: "awaiting first registration",
		}
	}
	return result
}

// GetStatus implements StatusChecker.
func (c *Checker) GetStatus(ctx context.Context) (*StatusResult, error) {
	readiness := c.Readiness(ctx)

	result := &StatusResult{
		Ready:          readiness.Ready,
		BossDesignated: readiness.BossID != 0,
		BootstrapMode:  c.mode,
		Version:        c.version,
	}

	if db, ok := readiness.Components[ComponentDatabase]; ok {
		result.RepositoryHealth = db.Message
		if !db.Ready {
			result.Reason = "database not ready: " + db.Message
		}
	}

	if boot, ok := readiness.Components[ComponentBootstrap]; ok {
		result.BootstrapMessage = boot.Message
		if !boot.Ready && result.Reason == "" {
			result.Reason = "bootstrap not ready: " + boot.Message
		}
	}

	return result, nil
}

var _ StatusChecker = (*Checker)(nil)
