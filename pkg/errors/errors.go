package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	ErrSessionAlreadyRunning = errors.New("a session is already running for this cluster")
	ErrSessionNotRunning     = errors.New("session is not running")
	ErrCooldownActive        = errors.New("cooldown active since previous session")
	ErrStaleRound            = errors.New("round number does not match the open round")
	ErrMalformedUpdate       = errors.New("weight delta shape does not match the model schema")
	ErrDuplicateUpdate       = errors.New("node already submitted an update for this round")
	ErrNodeExcluded          = errors.New("node is excluded from the remainder of this session")
	ErrNodeNotRegistered     = errors.New("node is not registered with this session")
	ErrInsufficientClients   = errors.New("insufficient clients to close the round")
	ErrRoundTimeout          = errors.New("round timed out before reaching quorum")
	ErrRegistryWriteFailure  = errors.New("failed to write model to the registry")
	ErrInsufficientData      = errors.New("current window has too few samples for a drift verdict")
	ErrNoDriftDetected       = errors.New("drift report does not warrant retraining")
	ErrSessionAborted        = errors.New("session was aborted")
)
