package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	jobs    interfaces.JobStorage
	objects interfaces.ObjectStorage
	kv      interfaces.KeyValueStorage
	logger  arbor.ILogger
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		jobs:    NewJobStorage(db, logger),
		objects: NewObjectStorage(db, logger),
		kv:      NewKVStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the job record storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// ObjectStorage returns the blob storage interface
func (m *Manager) ObjectStorage() interfaces.ObjectStorage {
	return m.objects
}

// KeyValueStorage returns the key/value storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// DB returns the underlying database wrapper, used for sharing the Badger
// instance with the work queue
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
