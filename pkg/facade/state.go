package facade

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/agent-resource-manager/pkg/models"
)

// persistedState is the JSON shape of an exported facade. Only durable
// configuration travels: agent configs and live allocations. Histories,
// cooldown timestamps and health counters are runtime state and are
// rebuilt from fresh observations after an import.
type persistedState struct {
	Version     int                          `json:"version"`
	ExportedAt  time.Time                    `json:"exportedAt"`
	Agents      []models.AgentResourceConfig `json:"agents"`
	Allocations []models.ResourceAllocation  `json:"allocations"`
}

const stateVersion = 1

// ExportState serializes agent configurations and allocator state
func (f *Facade) ExportState() ([]byte, error) {
	state := persistedState{
		Version:     stateVersion,
		ExportedAt:  time.Now(),
		Agents:      f.manager.ListAgents(),
		Allocations: f.allocator.Allocations(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	return data, nil
}

// ImportState restores agent configurations and allocator state into a
// freshly constructed facade. Importing on top of existing registrations
// fails on the first duplicate agent.
func (f *Facade) ImportState(data []byte) error {
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse state: %w", err)
	}
	if state.Version != stateVersion {
		return fmt.Errorf("unsupported state version %d", state.Version)
	}

	for _, cfg := range state.Agents {
		if err := f.manager.RegisterAgent(cfg); err != nil {
			return fmt.Errorf("failed to restore agent %s: %w", cfg.AgentID, err)
		}
	}
	f.allocator.ImportAllocations(state.Allocations)

	f.logger.Info("state imported",
		zap.Int("agents", len(state.Agents)),
		zap.Int("allocations", len(state.Allocations)))
	return nil
}
