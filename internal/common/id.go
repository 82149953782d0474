package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique rewrite job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewSourceKey generates a storage key for an inline-submitted source text
func NewSourceKey() string {
	return "source_" + uuid.New().String()
}

// NewResultKey generates a storage key for a rewritten result text
func NewResultKey() string {
	return "result_" + uuid.New().String()
}
