package agent

import "agent-arena/internal/apperr"

var (
	ErrNameRequired = apperr.ErrInvalidRequest.WithReason("name is required")
	ErrNameTooLong  = apperr.ErrInvalidRequest.WithReason("name is longer than 64 characters")
)
