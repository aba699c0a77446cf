package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "reldiff/internal/errors"

	"github.com/dgraph-io/badger/v4"
)

// Entity is any record addressable by ID.
type Entity interface {
	GetID() string
}

// OpenDB opens a badger database at path, or an in-memory one when path is
// empty.
func OpenDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// BadgerStore keeps JSON encoded entities under "<prefix>:<id>" keys.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), s.prefix+":")
}

func (s *BadgerStore) Create(ctx context.Context, entity Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entity.GetID() == "" {
		return apperrors.ValidationError("entity ID cannot be empty", nil)
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	key := s.makeKey(entity.GetID())
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return apperrors.ValidationError(fmt.Sprintf("entity already exists: %s", entity.GetID()), nil)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) Get(ctx context.Context, id string, entity Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.makeKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, entity)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.NotFound(fmt.Sprintf("entity not found: %s", id), nil)
	}
	return err
}

func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := s.makeKey(id)
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.NotFound(fmt.Sprintf("entity not found: %s", id), nil)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// Each calls fn with the ID and raw JSON of every entity in key order.
// The value is only valid during the call.
func (s *BadgerStore) Each(ctx context.Context, fn func(id string, data []byte) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := s.stripPrefix(item.Key())
			if err := item.Value(func(val []byte) error {
				return fn(id, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}

// List decodes every entity into results, which must point to a slice.
func (s *BadgerStore) List(ctx context.Context, results any) error {
	var values []json.RawMessage
	err := s.Each(ctx, func(_ string, data []byte) error {
		values = append(values, append(json.RawMessage(nil), data...))
		return nil
	})
	if err != nil {
		return err
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	if err := json.Unmarshal(data, results); err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}
