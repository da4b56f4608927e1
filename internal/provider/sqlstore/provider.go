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

package sqlstore

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"metabridge/internal/codec"
	"metabridge/internal/common"
	"metabridge/internal/status"
	"metabridge/internal/transport"
	"metabridge/internal/util"
	"metabridge/internal/vfs"
)

// AllocationUnit is the granularity allocation sizes are rounded up to.
const AllocationUnit = 4096

var _ transport.Provider = (*Store)(nil)

func roundAllocation(size uint64) uint64 {
	return (size + AllocationUnit - 1) / AllocationUnit * AllocationUnit
}

// OpenFile looks up name and registers a user context for it.
func (s *Store) OpenFile(ctx context.Context, name string) (vfs.OpenParams, error) {
	m, err := s.Get(ctx, name)
	if err != nil {
		return vfs.OpenParams{}, err
	}
	rec := m.ToRecord()

	s.mu.Lock()
	uc := s.nextCtx
	s.nextCtx++
	s.contexts[uc] = m.Path
	s.mu.Unlock()

	return vfs.OpenParams{
		IndexNumber: uint64(m.IndexNumber),
		FileName:    common.VolumeName(m.Path),
		IsDirectory: m.IsDirectory,
		UserContext: uc,
		Info:        &rec,
	}, nil
}

// CloseFile drops a user context. A row marked for deletion is removed once
// no context refers to it.
func (s *Store) CloseFile(ctx context.Context, userContext uint64) error {
	s.mu.Lock()
	pp, ok := s.contexts[userContext]
	delete(s.contexts, userContext)
	referenced := false
	for _, other := range s.contexts {
		if other == pp {
			referenced = true
			break
		}
	}
	s.mu.Unlock()

	if !ok {
		return status.Wrap(common.ErrInvalidHandle, status.InvalidHandle)
	}
	if referenced {
		return nil
	}
	m, err := s.getWith(ctx, s.bun, pp)
	if err != nil {
		return err
	}
	if !m.DeletePending {
		return nil
	}
	log.Debugf("[sqlstore] removing %q", pp)
	return s.Delete(ctx, pp)
}

func (s *Store) resolve(req *transport.Request) (string, error) {
	s.mu.Lock()
	pp, ok := s.contexts[req.UserContext]
	s.mu.Unlock()
	if ok {
		return pp, nil
	}
	if req.FileName != "" {
		return common.ProviderPath(req.FileName), nil
	}
	return "", status.Wrap(fmt.Errorf("%w: %d", common.ErrUnknownNode, req.UserContext), status.InvalidHandle)
}

// QueryInformation implements transport.Provider.
func (s *Store) QueryInformation(ctx context.Context, req *transport.Request) (codec.Record, error) {
	pp, err := s.resolve(req)
	if err != nil {
		return codec.Record{}, err
	}
	m, err := s.getWith(ctx, s.bun, pp)
	if err != nil {
		return codec.Record{}, err
	}
	return m.ToRecord(), nil
}

// SetInformation implements transport.Provider. The read-modify-write runs
// in one transaction and is retried while the database is locked.
func (s *Store) SetInformation(ctx context.Context, req *transport.Request) (codec.Record, error) {
	pp, err := s.resolve(req)
	if err != nil {
		return codec.Record{}, err
	}

	return util.RetryWithResult(ctx, func() (codec.Record, error) {
		var out codec.Record
		err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			m, err := s.getWith(ctx, tx, pp)
			if err != nil {
				return err
			}
			if err := s.apply(ctx, tx, m, req.Set); err != nil {
				return err
			}
			if _, err := tx.NewUpdate().Model(m).WherePK().Exec(ctx); err != nil {
				return err
			}
			out = m.ToRecord()
			return nil
		})
		if err != nil {
			log.Debugf("[sqlstore] set %s on %q: %v", req.Set.Class, pp, err)
		}
		return out, err
	}, util.StoreRetryOptions(ctx)...)
}

// apply mutates m according to mut.
func (s *Store) apply(ctx context.Context, tx bun.Tx, m *FileInfoModel, mut codec.Mutation) error {
	rec := m.ToRecord()
	now := codec.FileTime(time.Now())

	switch mut.Class {
	case codec.ClassAllocation:
		if m.IsDirectory {
			return status.Wrap(common.ErrIsDir, status.FileIsADirectory)
		}
		rec.AllocationSize = mut.AllocationSize
		if rec.FileSize > rec.AllocationSize {
			rec.FileSize = rec.AllocationSize
		}
		rec.ChangeTime = now
	case codec.ClassEndOfFile:
		if m.IsDirectory {
			return status.Wrap(common.ErrIsDir, status.FileIsADirectory)
		}
		if mut.AdvanceOnly && mut.EndOfFile <= rec.FileSize {
			return nil
		}
		rec.FileSize = mut.EndOfFile
		rec.AllocationSize = roundAllocation(rec.FileSize)
		rec.LastWriteTime = now
		rec.ChangeTime = now
	case codec.ClassBasic:
		if mut.FileAttributes != codec.AttrUnchanged {
			rec.FileAttributes = mut.FileAttributes
		}
		if mut.CreationTime != 0 {
			rec.CreationTime = mut.CreationTime
		}
		if mut.LastAccessTime != 0 {
			rec.LastAccessTime = mut.LastAccessTime
		}
		if mut.LastWriteTime != 0 {
			rec.LastWriteTime = mut.LastWriteTime
		}
		rec.ChangeTime = now
	case codec.ClassDisposition:
		if mut.DeleteFile && m.IsDirectory {
			busy, err := s.hasChildren(ctx, tx, m.Path)
			if err != nil {
				return err
			}
			if busy {
				return status.Wrap(common.ErrNotEmpty, status.DirectoryNotEmpty)
			}
		}
		m.DeletePending = mut.DeleteFile
		return nil
	default:
		return status.New(status.InvalidParameter, "set class %s not supported", mut.Class)
	}

	isDir := m.IsDirectory
	m.FromRecord(rec)
	m.IsDirectory = isDir
	return nil
}
