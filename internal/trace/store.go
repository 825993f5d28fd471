package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"fhirchat/pkg/types"
)

const spanSchema = `
CREATE TABLE IF NOT EXISTS spans (
	span_id        TEXT PRIMARY KEY,
	trace_id       TEXT NOT NULL,
	parent_span_id TEXT,
	operation_name TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	start_time     INTEGER NOT NULL,
	end_time       INTEGER NOT NULL,
	duration       INTEGER NOT NULL,
	attributes     TEXT NOT NULL,
	status         TEXT NOT NULL,
	error_message  TEXT
);
CREATE INDEX IF NOT EXISTS idx_spans_session ON spans(session_id, start_time);
`

// Store persists spans derived from local telemetry events so the telemetry
// endpoint has data even without an external collector.
// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
// contention while reads go straight to the connection pool
type Store struct {
	db       *sql.DB
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
	logger   *zap.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens (or creates) the span database at path
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open span database: %w", err)
	}

	if _, err := db.Exec(spanSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize span schema: %w", err)
	}

	store := &Store{
		db:       db,
		writeCh:  make(chan writeOperation, 100), // TECHNICAL: Buffer prevents blocking emitters
		shutdown: make(chan struct{}),
		logger:   logger,
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.operation(s.db)
			if err != nil {
				s.logger.Warn("span_store_write_failed", zap.Error(err))
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("span store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeCh <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-time.After(5 * time.Second):
		return fmt.Errorf("span write timeout")
	case <-s.shutdown:
		return fmt.Errorf("span store is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSpan persists one completed span
func (s *Store) RecordSpan(ctx context.Context, span types.SpanData) error {
	attrs, err := json.Marshal(span.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode span attributes: %w", err)
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT OR REPLACE INTO spans
			 (span_id, trace_id, parent_span_id, operation_name, session_id,
			  start_time, end_time, duration, attributes, status, error_message)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			span.SpanID, span.TraceID, span.ParentSpanID, span.OperationName,
			span.Attributes.SessionID, span.StartTime, span.EndTime,
			span.Duration, string(attrs), span.Status, span.ErrorMessage,
		)
		return err
	})
}

// QuerySpans returns the stored spans for a session, oldest first
func (s *Store) QuerySpans(ctx context.Context, sessionID string) ([]types.SpanData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT span_id, trace_id, parent_span_id, operation_name,
		        start_time, end_time, duration, attributes, status, error_message
		 FROM spans WHERE session_id = ? ORDER BY start_time`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spans: %w", err)
	}
	defer rows.Close()

	var spans []types.SpanData
	for rows.Next() {
		var span types.SpanData
		var parentSpanID, errorMessage sql.NullString
		var attrs string

		if err := rows.Scan(&span.SpanID, &span.TraceID, &parentSpanID,
			&span.OperationName, &span.StartTime, &span.EndTime,
			&span.Duration, &attrs, &span.Status, &errorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}

		span.ParentSpanID = parentSpanID.String
		span.ErrorMessage = errorMessage.String
		if err := json.Unmarshal([]byte(attrs), &span.Attributes); err != nil {
			s.logger.Warn("span_store_attributes_invalid",
				zap.String("span_id", span.SpanID), zap.Error(err))
		}

		spans = append(spans, span)
	}

	return spans, rows.Err()
}

// Close stops the writer and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}
