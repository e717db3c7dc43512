package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chatguard/internal/config"
)

const timeoutPrefix = "timeout:"

// TimeoutStore is the ledger of identities currently timed out.
type TimeoutStore interface {
	TimeoutIdentity(ctx context.Context, identity string, d time.Duration) error
	IsTimedOut(ctx context.Context, identity string) (bool, error)
	ClearTimeout(ctx context.Context, identity string) error
	Close() error
}

// Timeout is one active ledger entry.
type Timeout struct {
	Identity  string
	ExpiresAt time.Time
}

// BadgerStore is the on-disk (or in-memory) timeout ledger. Each timeout is
// an empty "timeout:<identity>" key that badger expires on its own.
type BadgerStore struct {
	db *badger.DB
}

func timeoutKey(identity string) []byte {
	return []byte(timeoutPrefix + identity)
}

// ledgerLog routes badger's own messages into slog. Its info chatter about
// compactions goes to debug.
type ledgerLog struct {
	log *slog.Logger
}

func (l ledgerLog) Errorf(f string, v ...any) {
	l.log.Error(fmt.Sprintf(f, v...), "component", "badger")
}

func (l ledgerLog) Warningf(f string, v ...any) {
	l.log.Warn(fmt.Sprintf(f, v...), "component", "badger")
}

func (l ledgerLog) Infof(f string, v ...any) {
	l.log.Debug(fmt.Sprintf(f, v...), "component", "badger")
}

func (ledgerLog) Debugf(string, ...any) {}

// NewBadgerStore opens the ledger at cfg.Path. An empty path keeps it in
// memory, which is gone when the process exits.
func NewBadgerStore(cfg *config.DBConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.Path == "").
		WithValueThreshold(1024).
		WithLogger(ledgerLog{log: slog.Default()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open timeout ledger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// IsTimedOut reports whether identity has an unexpired timeout.
func (s *BadgerStore) IsTimedOut(ctx context.Context, identity string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(timeoutKey(identity))
		switch {
		case err == nil:
			found = true
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to look up timeout for %s: %w", identity, err)
	}
	return found, nil
}

// TimeoutIdentity times identity out for d from now, replacing any earlier
// expiry.
func (s *BadgerStore) TimeoutIdentity(ctx context.Context, identity string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("timeout for %q must be positive, got %s", identity, d)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(timeoutKey(identity), nil).WithTTL(d))
	})
	if err != nil {
		return fmt.Errorf("failed to record timeout for %s: %w", identity, err)
	}
	slog.Info("Timeout recorded", "identity", identity, "duration", d.String())
	return nil
}

// ClearTimeout lifts identity's timeout. Clearing an absent entry is not an error.
func (s *BadgerStore) ClearTimeout(ctx context.Context, identity string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(timeoutKey(identity))
	})
	if err != nil {
		return fmt.Errorf("failed to clear timeout for %s: %w", identity, err)
	}
	slog.Info("Timeout cleared", "identity", identity)
	return nil
}

// List returns every active timeout in identity order.
func (s *BadgerStore) List(ctx context.Context) ([]Timeout, error) {
	var out []Timeout
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(timeoutPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			t := Timeout{Identity: strings.TrimPrefix(string(item.Key()), timeoutPrefix)}
			if exp := item.ExpiresAt(); exp > 0 {
				t.ExpiresAt = time.Unix(int64(exp), 0)
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list timeouts: %w", err)
	}
	return out, nil
}
