package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stickershelf/internal/auth"
)

const probeInterval = 10 * time.Millisecond

// BadgerStore implements the Store interface using BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerStore creates and initializes a new BadgerDB store.
// It opens the database at the specified path.
func NewBadgerStore(dbPath string, logger logrus.FieldLogger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerStore{
		db:  db,
		log: logger.WithField("component", "store"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (s *BadgerStore) Close() error {
	s.log.Info("Closing BadgerDB...")
	err := s.db.Close()
	if err != nil {
		s.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	s.log.Info("BadgerDB closed.")
	return nil
}

// Format: {path}/
func collectionPrefix(path string) []byte {
	return []byte(path + "/")
}

// Format: {path}/{id}
func documentKey(path, id string) []byte {
	return []byte(path + "/" + id)
}

// Format: _subscription/{path}/{subscriptionID}. Lives outside every
// collection prefix so it never shows up in a listing.
func probeKey(path, subscriptionID string) []byte {
	return []byte("_subscription/" + path + "/" + subscriptionID)
}

func checkPath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("invalid collection path %q", path)
	}
	return nil
}

// Append stores data under a fresh id.
func (s *BadgerStore) Append(ctx context.Context, path string, data []byte) (string, error) {
	if err := checkPath(path); err != nil {
		return "", err
	}
	who, ok := auth.FromContext(ctx)
	if !ok {
		return "", ErrPermissionDenied
	}

	id := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{
		"path": path,
		"id":   id,
		"uid":  who.UID(),
	})

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(documentKey(path, id), data))
	})
	if err != nil {
		log.WithError(err).Error("Failed to append document to BadgerDB")
		return "", fmt.Errorf("failed to append document: %w", err)
	}

	log.Info("Document appended")
	return id, nil
}

// Delete removes a document. Unlike a plain badger delete it reports
// ErrNotFound for ids that do not exist.
func (s *BadgerStore) Delete(ctx context.Context, path, id string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	who, ok := auth.FromContext(ctx)
	if !ok {
		return ErrPermissionDenied
	}

	log := s.log.WithFields(logrus.Fields{
		"path": path,
		"id":   id,
		"uid":  who.UID(),
	})

	key := documentKey(path, id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("Attempted to delete non-existent document")
			return fmt.Errorf("delete %s: %w", id, ErrNotFound)
		}
		log.WithError(err).Error("Failed to delete document from BadgerDB")
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	log.Info("Document deleted")
	return nil
}

// List returns every document of the collection in key order.
func (s *BadgerStore) List(ctx context.Context, path string) ([]Document, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	prefix := collectionPrefix(path)
	docs := []Document{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value for key %s: %w", string(item.Key()), err)
			}
			docs = append(docs, Document{
				ID:   string(bytes.TrimPrefix(item.Key(), prefix)),
				Data: val,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	return docs, nil
}

// Subscribe opens a push feed on path built on badger's change stream.
//
// Badger registers a subscriber inside DB.Subscribe without signalling when
// that happened, so the feed writes a probe key until the subscriber sees it.
// Only then is the initial listing read: a write that lands after the listing
// is guaranteed to reach the change stream.
func (s *BadgerStore) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	subID := uuid.NewString()
	prefix := collectionPrefix(path)
	probe := probeKey(path, subID)
	log := s.log.WithFields(logrus.Fields{"path": path, "subscription": subID})

	subCtx, cancel := context.WithCancel(ctx)
	ready := make(chan struct{})
	var readyOnce sync.Once
	changed := make(chan struct{}, 1)
	subDone := make(chan error, 1)

	go func() {
		subDone <- s.db.Subscribe(subCtx, func(kvs *badger.KVList) error {
			dirty := false
			for _, kv := range kvs.GetKv() {
				if bytes.Equal(kv.GetKey(), probe) {
					readyOnce.Do(func() { close(ready) })
					continue
				}
				if bytes.HasPrefix(kv.GetKey(), prefix) {
					dirty = true
				}
			}
			if dirty {
				// Events carry full state, so pending changes coalesce.
				select {
				case changed <- struct{}{}:
				default:
				}
			}
			return nil
		}, []pb.Match{{Prefix: prefix}, {Prefix: probe}})
	}()

	out := make(chan Event)
	go func() {
		defer close(out)
		defer cancel()

		if err := s.awaitSubscriber(subCtx, probe, ready, subDone); err != nil {
			s.sendFailure(subCtx, out, err, log)
			return
		}
		log.Info("Subscription established")

		emit := func() {
			docs, err := s.List(subCtx, path)
			ev := Event{Docs: docs, Err: err}
			if err != nil {
				log.WithError(err).Error("Failed to read collection for push")
			}
			select {
			case out <- ev:
			case <-subCtx.Done():
			}
		}

		emit()
		for {
			select {
			case <-subCtx.Done():
				log.Info("Subscription closed")
				return
			case err := <-subDone:
				s.sendFailure(subCtx, out, err, log)
				return
			case <-changed:
				emit()
			}
		}
	}()

	return out, nil
}

// awaitSubscriber writes the probe key until the change stream reports it,
// then removes it again.
func (s *BadgerStore) awaitSubscriber(ctx context.Context, probe []byte, ready <-chan struct{}, subDone <-chan error) error {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(probe, nil)
		})
		if err != nil {
			return fmt.Errorf("failed to write subscription probe: %w", err)
		}

		select {
		case <-ready:
			err := s.db.Update(func(txn *badger.Txn) error {
				return txn.Delete(probe)
			})
			if err != nil {
				s.log.WithError(err).Warn("Failed to remove subscription probe")
			}
			return nil
		case err := <-subDone:
			if err == nil {
				err = ErrClosed
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sendFailure reports why a feed ended unless the subscriber asked for it.
func (s *BadgerStore) sendFailure(ctx context.Context, out chan<- Event, err error, log logrus.FieldLogger) {
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	log.WithError(err).Error("Subscription failed")
	select {
	case out <- Event{Err: err}:
	case <-ctx.Done():
	}
}

// RunGC reclaims value log space every interval until ctx is cancelled.
// A non-positive interval disables the loop.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.WithField("interval", interval).Warn("BadgerDB GC disabled: interval must be positive")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				s.log.Info("BadgerDB GC completed successfully")
			case errors.Is(err, badger.ErrNoRewrite):
				s.log.Debug("BadgerDB GC: No rewrite needed")
			default:
				s.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			s.log.Info("Stopping BadgerDB GC routine due to context cancellation")
			return
		}
	}
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
