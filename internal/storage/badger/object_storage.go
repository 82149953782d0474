package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
	"github.com/veridoc/rescribo/internal/interfaces"
)

// StoredObject is a blob record: source texts and rewritten results
type StoredObject struct {
	Key         string
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

// ObjectStorage implements the ObjectStorage interface for Badger
type ObjectStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewObjectStorage creates a new ObjectStorage instance
func NewObjectStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ObjectStorage {
	return &ObjectStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a blob by key
func (s *ObjectStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var obj StoredObject
	err := s.db.Store().Get(key, &obj)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return obj.Data, nil
}

// Put stores a blob under the given key, overwriting any existing value
func (s *ObjectStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("object key is required")
	}

	obj := StoredObject{
		Key:         key,
		Data:        data,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(key, obj); err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	s.logger.Trace().
		Str("key", key).
		Int("bytes", len(data)).
		Str("content_type", contentType).
		Msg("Object stored")

	return nil
}

// Delete removes a blob; deleting a missing key is not an error
func (s *ObjectStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(key, &StoredObject{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}
