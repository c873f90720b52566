package vector

import "errors"

// Error kinds reported by the Gateway, wrapped around the backend cause.
// Callers classify with errors.Is; retry policy lives with the caller and
// the LLM provider decorators, never here.
var (
	ErrIndexProvisioning = errors.New("index provisioning failed")
	ErrEmbedding         = errors.New("embedding failed")
	ErrIndexWrite        = errors.New("index write failed")
	ErrSearch            = errors.New("search failed")
	ErrStats             = errors.New("index stats failed")
)
