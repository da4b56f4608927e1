// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore keeps file metadata records in a libsql database and
// serves them as a transport.Provider.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"metabridge/internal/common"
	"metabridge/internal/status"
	"metabridge/internal/util"
)

// Options configures a Store.
type Options struct {
	// BusyTimeout in milliseconds; 0 uses the default.
	BusyTimeout int
}

// Store is a metadata store file. One process at a time may hold it.
type Store struct {
	path string
	db   *sql.DB
	bun  *bun.DB
	lock *flock.Flock

	mu       sync.Mutex
	contexts map[uint64]string // user context -> provider path
	nextCtx  uint64
}

// LockPath returns the lock file guarding the store at path.
func LockPath(path string) string {
	return path + ".lock"
}

func acquire(path string) (*flock.Flock, error) {
	lock := flock.New(LockPath(path))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, status.Wrap(fmt.Errorf("%w: %s is in use", common.ErrLocked, path), status.SharingViolation)
	}
	return lock, nil
}

func newStore(path string, db *sql.DB, lock *flock.Flock) *Store {
	return &Store{
		path:     path,
		db:       db,
		bun:      bun.NewDB(db, sqlitedialect.New()),
		lock:     lock,
		contexts: make(map[uint64]string),
		nextCtx:  1,
	}
}

// Create creates a new store file.
func Create(path string, opts Options) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, status.Wrap(fmt.Errorf("%w: %s", common.ErrExists, path), status.ObjectNameCollision)
	}
	lock, err := acquire(path)
	if err != nil {
		return nil, err
	}

	timeout := BusyTimeout(opts.BusyTimeout)
	db, err := sql.Open("libsql", BuildDSN(path, timeout))
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	fail := func(err error) (*Store, error) {
		db.Close()
		os.Remove(path)
		lock.Unlock()
		return nil, err
	}
	if err := applyPragmas(db, timeout); err != nil {
		return fail(err)
	}
	if err := execStatements(db, storeSchema); err != nil {
		return fail(fmt.Errorf("failed to create schema: %w", err))
	}
	if err := execStatements(db, initSchemaInfo, SchemaVersion, StoreType); err != nil {
		return fail(fmt.Errorf("failed to initialize schema info: %w", err))
	}

	log.Debugf("[sqlstore] created %s", path)
	return newStore(path, db, lock), nil
}

// Open opens an existing store file.
func Open(path string, opts Options) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, status.Wrap(fmt.Errorf("%w: %s", common.ErrNotFound, path), status.ObjectNameNotFound)
	}
	lock, err := acquire(path)
	if err != nil {
		return nil, err
	}

	timeout := BusyTimeout(opts.BusyTimeout)
	db, err := sql.Open("libsql", BuildDSN(path, timeout))
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := applyPragmas(db, timeout); err != nil {
		db.Close()
		lock.Unlock()
		return nil, err
	}

	s := newStore(path, db, lock)
	storeType, err := s.schemaInfo(context.Background(), "type")
	if err != nil || storeType != StoreType {
		db.Close()
		lock.Unlock()
		if err == nil {
			err = fmt.Errorf("not a metadata store (type=%s)", storeType)
		}
		return nil, fmt.Errorf("failed to read schema info: %w", err)
	}
	log.Debugf("[sqlstore] opened %s", path)
	return s, nil
}

// Close checkpoints the WAL, closes the database and releases the lock.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	// PRAGMA wal_checkpoint returns rows, so Query() not Exec()
	if rows, err := s.db.Query("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Warnf("[sqlstore] WAL checkpoint failed: %v", err)
	} else {
		rows.Close()
	}
	err := s.db.Close()
	s.db = nil
	os.Remove(s.path + "-wal")
	os.Remove(s.path + "-shm")
	if uerr := s.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) schemaInfo(ctx context.Context, key string) (string, error) {
	var info SchemaInfoModel
	err := s.bun.NewSelect().
		Model(&info).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return info.Value, nil
}

// Get returns the row for a provider path.
func (s *Store) Get(ctx context.Context, name string) (*FileInfoModel, error) {
	return s.getWith(ctx, s.bun, common.ProviderPath(name))
}

func (s *Store) getWith(ctx context.Context, idb bun.IDB, pp string) (*FileInfoModel, error) {
	var m FileInfoModel
	err := idb.NewSelect().
		Model(&m).
		Where("path = ?", pp).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.Wrap(fmt.Errorf("%w: %s", common.ErrNotFound, pp), status.ObjectNameNotFound)
	}
	if err != nil {
		return nil, status.Wrap(err, status.Unsuccessful)
	}
	return &m, nil
}

// Put inserts or replaces the row for m.Path. New rows get the next free
// index number; existing rows keep theirs. The parent must already be a
// directory row, except at the top level.
func (s *Store) Put(ctx context.Context, m *FileInfoModel) error {
	m.Path = common.ProviderPath(m.Path)
	if m.Path == "" {
		return status.Wrap(fmt.Errorf("%w: the root has no row", common.ErrInvalidPath), status.ObjectNameInvalid)
	}
	m.Parent = common.ParentPath(m.Path)
	return util.Retry(ctx, func() error {
		return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := s.checkParent(ctx, tx, m.Parent); err != nil {
				return err
			}
			existing, err := s.getWith(ctx, tx, m.Path)
			if err == nil {
				m.IndexNumber = existing.IndexNumber
				_, err = tx.NewUpdate().Model(m).WherePK().Exec(ctx)
				return err
			}
			if !status.Is(err, status.ObjectNameNotFound) {
				return err
			}
			var maxIndex sql.NullInt64
			if err := tx.NewRaw(`SELECT MAX(index_number) FROM file_info`).Scan(ctx, &maxIndex); err != nil {
				return err
			}
			m.IndexNumber = maxIndex.Int64 + 1
			_, err = tx.NewInsert().Model(m).Exec(ctx)
			return err
		})
	}, util.StoreRetryOptions(ctx)...)
}

// Delete removes the row for a provider path.
func (s *Store) Delete(ctx context.Context, name string) error {
	pp := common.ProviderPath(name)
	return util.Retry(ctx, func() error {
		_, err := s.bun.NewDelete().
			Model((*FileInfoModel)(nil)).
			Where("path = ?", pp).
			Exec(ctx)
		return err
	}, util.StoreRetryOptions(ctx)...)
}

// List returns every row ordered by path.
func (s *Store) List(ctx context.Context) ([]FileInfoModel, error) {
	var rows []FileInfoModel
	err := s.bun.NewSelect().
		Model(&rows).
		Order("path ASC").
		Scan(ctx)
	return rows, err
}

func (s *Store) checkParent(ctx context.Context, idb bun.IDB, parent string) error {
	if parent == "" {
		return nil
	}
	p, err := s.getWith(ctx, idb, parent)
	if status.Is(err, status.ObjectNameNotFound) {
		return status.Wrap(fmt.Errorf("%w: parent %s", common.ErrNotFound, parent), status.ObjectPathNotFound)
	}
	if err != nil {
		return err
	}
	if !p.IsDirectory {
		return status.Wrap(fmt.Errorf("%w: %s", common.ErrNotDir, parent), status.NotADirectory)
	}
	return nil
}

// hasChildren reports whether any row has pp as its parent.
func (s *Store) hasChildren(ctx context.Context, idb bun.IDB, pp string) (bool, error) {
	return idb.NewSelect().
		Model((*FileInfoModel)(nil)).
		Where("parent = ?", pp).
		Exists(ctx)
}
