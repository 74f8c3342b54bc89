package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const traceBucketName = "traces"

// Trace records one extraction attempt
type Trace struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Filename   string    `json:"filename"`
	Provider   string    `json:"provider,omitempty"`
	Result     Result    `json:"result"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Tracer records extraction traces
type Tracer interface {
	// Record stores a trace
	Record(ctx context.Context, trace Trace) error
}

// TraceStore implements Tracer using BoltDB
type TraceStore struct {
	db *bbolt.DB
}

// NewTraceStore opens (or creates) a trace database at path
func NewTraceStore(path string) (*TraceStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(traceBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &TraceStore{db: db}, nil
}

// Record saves a trace. Missing IDs are filled with a time-ordered UUID so
// that keys sort by creation.
func (s *TraceStore) Record(ctx context.Context, trace Trace) error {
	if trace.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating trace id: %w", err)
		}
		trace.ID = id.String()
	}
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(traceBucketName))
		data, err := json.Marshal(trace)
		if err != nil {
			return fmt.Errorf("marshaling trace: %w", err)
		}
		return bucket.Put([]byte(trace.ID), data)
	})
}

// Get retrieves a trace by ID
func (s *TraceStore) Get(id string) (*Trace, error) {
	var trace *Trace
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(traceBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("trace not found: %s", id)
		}
		return json.Unmarshal(data, &trace)
	})
	if err != nil {
		return nil, err
	}
	return trace, nil
}

// List returns up to limit traces, newest first. limit <= 0 returns all.
func (s *TraceStore) List(limit int) ([]*Trace, error) {
	traces := make([]*Trace, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(traceBucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(traces) >= limit {
				break
			}
			var trace Trace
			if err := json.Unmarshal(v, &trace); err != nil {
				return fmt.Errorf("unmarshaling trace: %w", err)
			}
			traces = append(traces, &trace)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return traces, nil
}

// Close closes the database
func (s *TraceStore) Close() error {
	return s.db.Close()
}
