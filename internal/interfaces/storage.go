// -----------------------------------------------------------------------
// Storage interfaces - job records, result blobs, key/value pairs
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/veridoc/rescribo/internal/models"
)

// ErrJobNotFound is returned when a job id has no persisted record
var ErrJobNotFound = errors.New("job not found")

// ErrObjectNotFound is returned when a blob key has no stored object
var ErrObjectNotFound = errors.New("object not found")

// ErrResultMissing is returned when a job record claims COMPLETED but the
// referenced result blob cannot be located. This is an internal-consistency
// error and must never be reported as "not found" or "still processing".
var ErrResultMissing = errors.New("job completed but result is missing")

// JobListOptions controls job listing
type JobListOptions struct {
	Limit  int
	Offset int
	Status string // optional status filter
}

// JobStorage persists rewrite job records, keyed by job id.
// Submit writes the initial PROCESSING record; the execution worker writes
// the single terminal record. No other writer exists for a given job id.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.RewriteJob) error
	GetJob(ctx context.Context, jobID string) (*models.RewriteJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.RewriteJob, error)
	CountJobs(ctx context.Context) (int, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)

	// GetStaleJobs returns jobs still PROCESSING whose last update is older
	// than the threshold. Used by the monitor for reporting only.
	GetStaleJobs(ctx context.Context, olderThan time.Duration) ([]*models.RewriteJob, error)
}

// ObjectStorage stores opaque blobs (source and rewritten text) by key
type ObjectStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ErrKeyNotFound is returned when a key is absent from the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair is a stored key/value entry with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage holds operational settings and API keys
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager is the composite handle over all storage concerns
type StorageManager interface {
	JobStorage() JobStorage
	ObjectStorage() ObjectStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
