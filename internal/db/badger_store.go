package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/leelachesszero/sprt-server/internal/coordinator"
	"github.com/leelachesszero/sprt-server/internal/models"
)

var _ coordinator.Store = (*BadgerStore)(nil)

const (
	enginePrefix = "engine/"
	testPrefix   = "test/"
)

func engineKey(id uint) []byte { return fmt.Appendf(nil, "%s%020d", enginePrefix, id) }
func testKey(id uint) []byte   { return fmt.Appendf(nil, "%s%020d", testPrefix, id) }

// BadgerConfig configures an embedded store.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Logger receives badger's own log lines. Nil disables them.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps engines and tests in an embedded badger database as
// JSON documents.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens or creates an embedded store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for a persistent badger store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq/id"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("id sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the id sequence and closes the database.
func (s *BadgerStore) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

func (s *BadgerStore) nextID() (uint, error) {
	for {
		id, err := s.seq.Next()
		if err != nil {
			return 0, fmt.Errorf("next id: %w", err)
		}
		// Zero means unset to gorm and the coordinator.
		if id != 0 {
			return uint(id), nil
		}
	}
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return coordinator.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}

// Engine implements coordinator.EngineRegistry.
func (s *BadgerStore) Engine(_ context.Context, id uint) (models.Engine, error) {
	var e models.Engine
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, engineKey(id), &e)
	})
	if err != nil {
		return models.Engine{}, fmt.Errorf("engine %d: %w", id, err)
	}
	return e, nil
}

func (s *BadgerStore) CreateEngine(_ context.Context, e *models.Engine) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	e.ID = id
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, engineKey(id), e)
	})
}

func (s *BadgerStore) CreateTest(_ context.Context, t *models.Test) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	t.ID = id
	return s.db.Update(func(txn *badger.Txn) error {
		for _, ref := range []uint{t.DevID, t.BaseID} {
			if _, err := txn.Get(engineKey(ref)); err != nil {
				return fmt.Errorf("engine %d: %w", ref, err)
			}
		}
		return setJSON(txn, testKey(id), t)
	})
}

// SaveTest replaces the stored document of an existing test.
func (s *BadgerStore) SaveTest(_ context.Context, t *models.Test) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(testKey(t.ID)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("test %d: %w", t.ID, coordinator.ErrNotFound)
		} else if err != nil {
			return err
		}
		return setJSON(txn, testKey(t.ID), t)
	})
}

// ListTests returns every test in id order.
func (s *BadgerStore) ListTests(_ context.Context) ([]models.Test, error) {
	var tests []models.Test
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(testPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t models.Test
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			tests = append(tests, t)
		}
		return nil
	})
	return tests, err
}
