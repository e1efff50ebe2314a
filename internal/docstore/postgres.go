package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/htkfoods/storefront/internal/utils"
	"github.com/lib/pq"
)

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		version BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

type PostgresStore struct {
	db       *sql.DB
	channel  string
	listener *pq.Listener
	mu       sync.Mutex
	subs     map[string]map[uint64]ChangeFunc
	nextID   uint64
	done     chan struct{}
	closed   sync.Once
}

// NewListener opens the LISTEN connection used for live updates.
func NewListener(dsn string) *pq.Listener {
	return pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("Document listener event", slog.Int("event", int(ev)), slog.String("error", err.Error()))
		}
	})
}

// NewPostgresStore keeps documents in a JSONB table. Writes announce the
// changed path with pg_notify on channel; listener may be nil when live
// updates from other processes are not needed.
func NewPostgresStore(db *sql.DB, channel string, listener *pq.Listener) (*PostgresStore, error) {
	s := &PostgresStore{
		db:       db,
		channel:  channel,
		listener: listener,
		subs:     make(map[string]map[uint64]ChangeFunc),
		done:     make(chan struct{}),
	}

	if listener != nil {
		if err := listener.Listen(channel); err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
		go s.listen()
	}

	return s, nil
}

func (s *PostgresStore) InitSchema(ctx context.Context) error {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(dbCtx, schema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (*Document, error) {
	query := `SELECT data, version FROM documents WHERE path = $1`

	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	doc := &Document{Path: path}
	var data []byte

	err := s.db.QueryRowContext(dbCtx, query, path).Scan(&data, &doc.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}

	doc.Data = data
	return doc, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, data any, opts SetOptions) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (path, data, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
		RETURNING version`

	if opts.Merge {
		query = `
		INSERT INTO documents (path, data, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (path) DO UPDATE SET data = documents.data || EXCLUDED.data, version = documents.version + 1, updated_at = NOW()
		RETURNING version`
	}

	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	var version int64
	if err := s.db.QueryRowContext(dbCtx, query, path, string(encoded)).Scan(&version); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}

	s.announce(dbCtx, path)
	return nil
}

func (s *PostgresStore) CompareAndSet(ctx context.Context, path string, expectedVersion int64, data any) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}

	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	var result sql.Result

	if expectedVersion == 0 {
		query := `
			INSERT INTO documents (path, data, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (path) DO NOTHING`
		result, err = s.db.ExecContext(dbCtx, query, path, string(encoded))
	} else {
		query := `
			UPDATE documents SET data = $2, version = version + 1, updated_at = NOW()
			WHERE path = $1 AND version = $3`
		result, err = s.db.ExecContext(dbCtx, query, path, string(encoded), expectedVersion)
	}

	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	if rows == 0 {
		return ErrConflict
	}

	s.announce(dbCtx, path)
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error) {
	id := s.register(path, fn)

	doc, err := s.Get(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.unregister(path, id)
		return nil, err
	}

	fn(doc)

	var once sync.Once
	return func() {
		once.Do(func() { s.unregister(path, id) })
	}, nil
}

// HandleNotification re-reads path and fans it out to local subscribers.
func (s *PostgresStore) HandleNotification(ctx context.Context, path string) {
	fns := s.subscribers(path)
	if len(fns) == 0 {
		return
	}

	doc, err := s.Get(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		slog.Warn("Failed to refresh document after notification",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	notify(fns, doc)
}

func (s *PostgresStore) Close() error {
	s.closed.Do(func() { close(s.done) })

	if s.listener != nil {
		return s.listener.Close()
	}

	return nil
}

// announce notifies subscribers of this process directly when no listener
// runs, otherwise the NOTIFY round trip does it.
func (s *PostgresStore) announce(ctx context.Context, path string) {
	if s.channel != "" {
		if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, s.channel, path); err != nil {
			slog.Warn("Failed to publish document change",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.listener == nil {
		s.HandleNotification(ctx, path)
	}
}

func (s *PostgresStore) listen() {
	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}

			ctx, cancel := utils.WithDBTimeout(context.Background())

			// nil after a reconnect: notifications may have been missed.
			if n == nil {
				for _, path := range s.paths() {
					s.HandleNotification(ctx, path)
				}
			} else {
				s.HandleNotification(ctx, n.Extra)
			}

			cancel()
		case <-time.After(90 * time.Second):
			go func() {
				if err := s.listener.Ping(); err != nil {
					slog.Warn("Document listener ping failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

func (s *PostgresStore) register(path string, fn ChangeFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	if s.subs[path] == nil {
		s.subs[path] = make(map[uint64]ChangeFunc)
	}
	s.subs[path][s.nextID] = fn

	return s.nextID
}

func (s *PostgresStore) unregister(path string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs[path], id)
	if len(s.subs[path]) == 0 {
		delete(s.subs, path)
	}
}

func (s *PostgresStore) subscribers(path string) []ChangeFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	fns := make([]ChangeFunc, 0, len(s.subs[path]))
	for _, fn := range s.subs[path] {
		fns = append(fns, fn)
	}

	return fns
}

func (s *PostgresStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.subs))
	for p := range s.subs {
		paths = append(paths, p)
	}

	return paths
}
