// -----------------------------------------------------------------------
// Badger Queue - persistent work queue with visibility timeouts
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/veridoc/rescribo/internal/interfaces"
)

// ErrNoMessage is returned when the queue has no visible message
var ErrNoMessage = errors.New("no messages in queue")

// queueMessage is the internal structure stored in Badger. A message becomes
// invisible for the visibility timeout once received; if the consumer never
// acknowledges it, it reappears and is redelivered. Messages received more
// than maxReceive times are dead-lettered.
type queueMessage struct {
	ID           string                `json:"id"`
	Body         interfaces.JobMessage `json:"body"`
	EnqueuedAt   time.Time             `json:"enqueued_at"`
	VisibleAt    time.Time             `json:"visible_at"`
	ReceiveCount int                   `json:"receive_count"`
}

// DeadLetterFunc is invoked when a message exhausts its receive budget and
// is dropped from the queue
type DeadLetterFunc func(msg *interfaces.JobMessage, receiveCount int)

// Manager implements a persistent at-least-once queue on BadgerDB.
// Message data lives at queue:{name}:msg:{id}; a visibility index at
// queue:{name}:index:{visibleAt}:{id} keeps ready messages scannable in
// timestamp order.
type Manager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	onDeadLetter      DeadLetterFunc
}

var _ interfaces.JobQueue = (*Manager)(nil)

// NewManager creates a new Badger-backed queue manager
func NewManager(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 10 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// SetDeadLetterHandler registers the callback for exhausted messages
func (m *Manager) SetDeadLetterHandler(fn DeadLetterFunc) {
	m.onDeadLetter = fn
}

// Enqueue stores a message, immediately visible
func (m *Manager) Enqueue(ctx context.Context, msg *interfaces.JobMessage) error {
	id := uuid.New().String()

	qMsg := queueMessage{
		ID:           id,
		Body:         *msg,
		EnqueuedAt:   time.Now(),
		VisibleAt:    time.Now(),
		ReceiveCount: 0,
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{})
	})
}

// Receive pulls the next visible message. The returned ack function removes
// the message permanently; an unacked message reappears after the visibility
// timeout. Dead-lettered messages are removed inside the scan and reported
// through the registered handler.
func (m *Manager) Receive(ctx context.Context) (*interfaces.JobMessage, func() error, error) {
	var qMsg queueMessage
	var msgID string
	var deadLettered []queueMessage
	found := false

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}

			if ts.After(now) {
				// Index keys sort by timestamp; nothing later is ready either
				break
			}

			msgItem, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Dangling index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			if qMsg.ReceiveCount >= m.maxReceive {
				// Poison message: drop it and report via the dead-letter hook
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				deadLettered = append(deadLettered, qMsg)
				continue
			}

			found = true
			msgID = id

			// Claim: bump receive count and push visibility into the future
			qMsg.ReceiveCount++
			qMsg.VisibleAt = time.Now().Add(m.visibilityTimeout)

			newData, err := json.Marshal(qMsg)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(msgID), newData); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			return txn.Set(m.indexKey(qMsg.VisibleAt, msgID), []byte{})
		}

		// An empty scan still commits so that poison-message deletions
		// above are not rolled back.
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Report dead-letters outside the transaction
	if m.onDeadLetter != nil {
		for i := range deadLettered {
			m.onDeadLetter(&deadLettered[i].Body, deadLettered[i].ReceiveCount)
		}
	}

	if !found {
		return nil, nil, ErrNoMessage
	}

	ack := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(m.msgKey(msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // already acked
				}
				return err
			}

			var current queueMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(m.indexKey(current.VisibleAt, msgID)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return txn.Delete(m.msgKey(msgID))
		})
	}

	body := qMsg.Body
	return &body, ack, nil
}

// Depth returns the number of messages currently stored (visible or not)
func (m *Manager) Depth() (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close is a no-op; the shared Badger instance is owned by the storage manager
func (m *Manager) Close() error {
	return nil
}

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so byte ordering matches numeric ordering
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 { // 20 digits + colon + at least one id char
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	ns, err := strconv.ParseInt(suffix[:20], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid index key timestamp: %w", err)
	}

	return time.Unix(0, ns), suffix[21:], nil
}
