package manager

import "errors"

// Sentinel errors returned by manager operations. Callers distinguish
// hard failures from quiet no-ops with errors.Is.
var (
	// ErrNotFound indicates the agent ID is not registered
	ErrNotFound = errors.New("agent not found")

	// ErrAlreadyRegistered indicates a registration with a duplicate agent ID
	ErrAlreadyRegistered = errors.New("agent already registered")

	// ErrScalingDisabled indicates the agent's scaling policy is disabled
	ErrScalingDisabled = errors.New("scaling disabled for agent")

	// ErrCooldownActive indicates a scaling attempt inside the cooldown window
	ErrCooldownActive = errors.New("scaling cooldown active")

	// ErrReplicaBound indicates a scaling target outside [min, max] replicas
	ErrReplicaBound = errors.New("replica count out of bounds")

	// ErrManagerClosed indicates the manager has been shut down
	ErrManagerClosed = errors.New("manager is shut down")
)
