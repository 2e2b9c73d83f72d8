// Package boltstore keeps invoices and users as JSON documents in an embedded BoltDB file.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

var (
	invoicesBucket   = []byte("invoices")
	pandaDocIDBucket = []byte("invoices_by_pandadoc_id")
	usersBucket      = []byte("users")
)

// DB is an open bolt file with the buckets this package needs
type DB struct {
	bolt   *bolt.DB
	logger *zap.Logger
}

// Open opens (or creates) the bolt file at path and ensures the buckets exist
func Open(path string, logger *zap.Logger) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{invoicesBucket, pandaDocIDBucket, usersBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	logger.Info("Bolt database opened", zap.String("path", path))
	return &DB{bolt: db, logger: logger}, nil
}

// Close releases the file lock
func (db *DB) Close() error {
	return db.bolt.Close()
}

// InvoiceStore implements port.InvoiceRepository
type InvoiceStore struct {
	db *DB
}

// NewInvoiceStore creates an invoice store over db
func NewInvoiceStore(db *DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Create inserts a new invoice. Creating an id that already exists with the
// same document is a no-op; a different document is rejected.
func (s *InvoiceStore) Create(ctx context.Context, inv *entity.Invoice) error {
	if !inv.Status.IsPersistable() {
		return fmt.Errorf("%w: status %q cannot be stored", lifecycle.ErrInvalidStatus, inv.Status)
	}

	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode invoice: %w", err)
	}

	return s.db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(invoicesBucket)
		if existing := b.Get([]byte(inv.ID)); existing != nil {
			if bytes.Equal(existing, data) {
				return nil
			}
			return fmt.Errorf("invoice %s already exists", inv.ID)
		}
		if err := b.Put([]byte(inv.ID), data); err != nil {
			return err
		}
		return indexPandaDoc(tx, nil, inv)
	})
}

// Get retrieves an invoice by id
func (s *InvoiceStore) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	var inv *entity.Invoice
	err := s.db.bolt.View(func(tx *bolt.Tx) error {
		var err error
		inv, err = getInvoice(tx, id)
		return err
	})
	if err != nil {
		s.db.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// Update runs mutate inside a bolt write transaction. Bolt allows a single
// writer at a time, which makes the read-modify-write atomic.
func (s *InvoiceStore) Update(ctx context.Context, id string, mutate port.InvoiceMutator) (*entity.Invoice, error) {
	var updated *entity.Invoice

	err := s.db.bolt.Update(func(tx *bolt.Tx) error {
		inv, err := getInvoice(tx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("invoice %s: %w", id, entity.ErrNotFound)
		}
		before := *inv

		if err := mutate(inv); err != nil {
			return err
		}
		if inv.ID != id {
			return fmt.Errorf("invoice id is immutable (%s -> %s)", id, inv.ID)
		}
		if !inv.Status.IsPersistable() {
			return fmt.Errorf("%w: status %q cannot be stored", lifecycle.ErrInvalidStatus, inv.Status)
		}

		data, err := json.Marshal(inv)
		if err != nil {
			return fmt.Errorf("failed to encode invoice: %w", err)
		}

		b := tx.Bucket(invoicesBucket)
		// skip the write when nothing changed
		if !bytes.Equal(b.Get([]byte(id)), data) {
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
			if err := indexPandaDoc(tx, &before, inv); err != nil {
				return err
			}
		}

		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListByOwner returns the invoices of a user, newest first
func (s *InvoiceStore) ListByOwner(ctx context.Context, userID string) ([]*entity.Invoice, error) {
	invoices, err := s.scan(func(inv *entity.Invoice) bool {
		return inv.IsOwnedBy(userID)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
	return invoices, nil
}

// GetByPandaDocID finds an invoice through the pandadoc id index
func (s *InvoiceStore) GetByPandaDocID(ctx context.Context, pandaDocID string) (*entity.Invoice, error) {
	var inv *entity.Invoice
	err := s.db.bolt.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(pandaDocIDBucket).Get([]byte(pandaDocID))
		if id == nil {
			return nil
		}
		var err error
		inv, err = getInvoice(tx, string(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice by pandadoc id: %w", err)
	}
	return inv, nil
}

// ListByStatusOlderThan returns up to limit invoices in status updated before the cutoff
func (s *InvoiceStore) ListByStatusOlderThan(ctx context.Context, status lifecycle.Status, before time.Time, limit int) ([]*entity.Invoice, error) {
	invoices, err := s.scan(func(inv *entity.Invoice) bool {
		return inv.Status == status && inv.UpdatedAt.Before(before)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].UpdatedAt.Before(invoices[j].UpdatedAt)
	})
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (s *InvoiceStore) scan(match func(*entity.Invoice) bool) ([]*entity.Invoice, error) {
	invoices := make([]*entity.Invoice, 0)
	err := s.db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(invoicesBucket).ForEach(func(k, v []byte) error {
			var inv entity.Invoice
			if err := json.Unmarshal(v, &inv); err != nil {
				return fmt.Errorf("invoice %s: %w", k, err)
			}
			if match(&inv) {
				invoices = append(invoices, &inv)
			}
			return nil
		})
	})
	if err != nil {
		s.db.logger.Error("Failed to scan invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to scan invoices: %w", err)
	}
	return invoices, nil
}

func getInvoice(tx *bolt.Tx, id string) (*entity.Invoice, error) {
	v := tx.Bucket(invoicesBucket).Get([]byte(id))
	if v == nil {
		return nil, nil
	}
	var inv entity.Invoice
	if err := json.Unmarshal(v, &inv); err != nil {
		return nil, fmt.Errorf("invoice %s: %w", id, err)
	}
	return &inv, nil
}

func indexPandaDoc(tx *bolt.Tx, before, after *entity.Invoice) error {
	idx := tx.Bucket(pandaDocIDBucket)
	if before != nil && before.PandaDocID != nil &&
		(after.PandaDocID == nil || *after.PandaDocID != *before.PandaDocID) {
		if err := idx.Delete([]byte(*before.PandaDocID)); err != nil {
			return err
		}
	}
	if after.PandaDocID != nil {
		return idx.Put([]byte(*after.PandaDocID), []byte(after.ID))
	}
	return nil
}

// UserStore implements port.UserRepository
type UserStore struct {
	db *DB
}

// NewUserStore creates a user store over db
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Get retrieves a user by id
func (s *UserStore) Get(ctx context.Context, id string) (*entity.User, error) {
	var user *entity.User
	err := s.db.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(usersBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		user = &entity.User{}
		return json.Unmarshal(v, user)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Upsert stores the user, keeping the original creation time
func (s *UserStore) Upsert(ctx context.Context, user *entity.User) error {
	return s.db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		toStore := *user
		if v := b.Get([]byte(user.ID)); v != nil {
			var existing entity.User
			if err := json.Unmarshal(v, &existing); err == nil {
				toStore.CreatedAt = existing.CreatedAt
			}
		}
		data, err := json.Marshal(&toStore)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}

var (
	_ port.InvoiceRepository = (*InvoiceStore)(nil)
	_ port.UserRepository    = (*UserStore)(nil)
)
