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

// Package billyfs serves file metadata from a go-billy filesystem. Attributes
// and timestamps the filesystem cannot store are kept in an in-memory overlay.
//
// Times are stamped from the modification time the first time a path is
// seen and move only when a set through this provider changes them, so
// filesystems whose ModTime is not stable (memfs) still report stable records.
package billyfs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"

	"metabridge/internal/codec"
	"metabridge/internal/common"
	"metabridge/internal/status"
	"metabridge/internal/transport"
	"metabridge/internal/vfs"
)

// AllocationUnit is the granularity allocation sizes are rounded up to.
const AllocationUnit = 4096

// overlay holds what the filesystem does not store. Zero times are unset
// and fall back to stamp.
type overlay struct {
	stamp         uint64
	attrs         uint32
	attrsSet      bool
	creation      uint64
	access        uint64
	write         uint64
	change        uint64
	deletePending bool
}

// Provider implements transport.Provider over a billy.Filesystem.
type Provider struct {
	fs billy.Filesystem

	mu       sync.Mutex
	inodes   map[string]uint64 // provider path -> index number
	nextIno  uint64
	contexts map[uint64]string // user context -> provider path
	nextCtx  uint64
	overlays map[string]*overlay
}

var _ transport.Provider = (*Provider)(nil)

// New creates a provider for fs.
func New(fs billy.Filesystem) *Provider {
	return &Provider{
		fs:       fs,
		inodes:   make(map[string]uint64),
		nextIno:  1,
		contexts: make(map[uint64]string),
		nextCtx:  1,
		overlays: make(map[string]*overlay),
	}
}

// Open stats name and registers a user context for it. The returned
// parameters are ready for vfs.Volume.Open and carry the current record.
func (p *Provider) Open(name string) (vfs.OpenParams, error) {
	pp := common.ProviderPath(name)
	fi, err := p.fs.Stat(providerName(pp))
	if err != nil {
		return vfs.OpenParams{}, status.Wrap(err, status.FromError(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ino, ok := p.inodes[pp]
	if !ok {
		ino = p.nextIno
		p.nextIno++
		p.inodes[pp] = ino
	}
	uc := p.nextCtx
	p.nextCtx++
	p.contexts[uc] = pp

	rec := p.record(pp, fi)
	log.Debugf("[billyfs] open %q ino=%d ctx=%d", pp, ino, uc)
	return vfs.OpenParams{
		IndexNumber: ino,
		FileName:    common.VolumeName(pp),
		IsDirectory: fi.IsDir(),
		UserContext: uc,
		Info:        &rec,
	}, nil
}

// Close drops a user context. A file marked for deletion is removed.
func (p *Provider) Close(userContext uint64) error {
	p.mu.Lock()
	pp, ok := p.contexts[userContext]
	delete(p.contexts, userContext)
	ov := p.overlays[pp]
	remove := ok && ov != nil && ov.deletePending && !p.referenced(pp)
	if remove {
		delete(p.overlays, pp)
		delete(p.inodes, pp)
	}
	p.mu.Unlock()

	if !ok {
		return status.Wrap(common.ErrInvalidHandle, status.InvalidHandle)
	}
	if remove {
		log.Debugf("[billyfs] removing %q", pp)
		if err := p.fs.Remove(providerName(pp)); err != nil {
			return status.Wrap(err, status.FromError(err))
		}
	}
	return nil
}

// referenced reports whether any user context still names pp. Caller holds mu.
func (p *Provider) referenced(pp string) bool {
	for _, other := range p.contexts {
		if other == pp {
			return true
		}
	}
	return false
}

// QueryInformation implements transport.Provider.
func (p *Provider) QueryInformation(_ context.Context, req *transport.Request) (codec.Record, error) {
	pp, err := p.resolve(req)
	if err != nil {
		return codec.Record{}, err
	}
	fi, err := p.fs.Stat(providerName(pp))
	if err != nil {
		return codec.Record{}, status.Wrap(err, status.FromError(err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(pp, fi), nil
}

// SetInformation implements transport.Provider.
func (p *Provider) SetInformation(_ context.Context, req *transport.Request) (codec.Record, error) {
	pp, err := p.resolve(req)
	if err != nil {
		return codec.Record{}, err
	}
	name := providerName(pp)
	fi, err := p.fs.Stat(name)
	if err != nil {
		return codec.Record{}, status.Wrap(err, status.FromError(err))
	}

	m := req.Set
	switch m.Class {
	case codec.ClassAllocation:
		if fi.IsDir() {
			return codec.Record{}, status.Wrap(common.ErrIsDir, status.FileIsADirectory)
		}
		if int64(m.AllocationSize) < fi.Size() {
			err = p.truncate(pp, name, int64(m.AllocationSize))
		}
	case codec.ClassEndOfFile:
		if fi.IsDir() {
			return codec.Record{}, status.Wrap(common.ErrIsDir, status.FileIsADirectory)
		}
		size := int64(m.EndOfFile)
		if !m.AdvanceOnly || size > fi.Size() {
			err = p.truncate(pp, name, size)
		}
	case codec.ClassBasic:
		err = p.setBasic(pp, name, fi, m)
	case codec.ClassDisposition:
		err = p.setDisposition(pp, name, fi, m.DeleteFile)
	default:
		err = status.New(status.InvalidParameter, "set class %s not supported", m.Class)
	}
	if err != nil {
		log.Debugf("[billyfs] set %s on %q: %v", m.Class, pp, err)
		return codec.Record{}, err
	}

	if fi, err = p.fs.Stat(name); err != nil {
		return codec.Record{}, status.Wrap(err, status.FromError(err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(pp, fi), nil
}

func (p *Provider) resolve(req *transport.Request) (string, error) {
	p.mu.Lock()
	pp, ok := p.contexts[req.UserContext]
	p.mu.Unlock()
	if ok {
		return pp, nil
	}
	if req.FileName != "" {
		return common.ProviderPath(req.FileName), nil
	}
	return "", status.Wrap(fmt.Errorf("%w: %d", common.ErrUnknownNode, req.UserContext), status.InvalidHandle)
}

// truncate resizes name and stamps the write and change times of pp.
func (p *Provider) truncate(pp, name string, size int64) error {
	if !billy.CapabilityCheck(p.fs, billy.TruncateCapability) {
		return status.New(status.NotSupported, "filesystem cannot truncate")
	}
	f, err := p.fs.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return status.Wrap(err, status.FromError(err))
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return status.Wrap(err, status.FromError(err))
	}

	now := codec.FileTime(time.Now())
	p.mu.Lock()
	ov := p.overlayFor(pp)
	ov.write, ov.change = now, now
	p.mu.Unlock()
	return nil
}

func (p *Provider) setBasic(pp, name string, fi os.FileInfo, m codec.Mutation) error {
	p.mu.Lock()
	ov := p.overlayFor(pp)
	if m.FileAttributes != codec.AttrUnchanged {
		ov.attrs = m.FileAttributes &^ codec.AttrDirectory
		ov.attrsSet = true
	}
	if m.CreationTime != 0 {
		ov.creation = m.CreationTime
	}
	if m.LastAccessTime != 0 {
		ov.access = m.LastAccessTime
	}
	if m.LastWriteTime != 0 {
		ov.write = m.LastWriteTime
	}
	ov.change = codec.FileTime(time.Now())
	p.mu.Unlock()

	if m.LastWriteTime == 0 && m.LastAccessTime == 0 {
		return nil
	}
	ch, ok := p.fs.(billy.Change)
	if !ok {
		return nil
	}
	mtime := fi.ModTime()
	if m.LastWriteTime != 0 {
		mtime = codec.Time(m.LastWriteTime)
	}
	atime := mtime
	if m.LastAccessTime != 0 {
		atime = codec.Time(m.LastAccessTime)
	}
	if err := ch.Chtimes(name, atime, mtime); err != nil {
		return status.Wrap(err, status.FromError(err))
	}
	return nil
}

func (p *Provider) setDisposition(pp, name string, fi os.FileInfo, deleteFile bool) error {
	if deleteFile && fi.IsDir() {
		entries, err := p.fs.ReadDir(name)
		if err != nil {
			return status.Wrap(err, status.FromError(err))
		}
		if len(entries) > 0 {
			return status.Wrap(common.ErrNotEmpty, status.DirectoryNotEmpty)
		}
	}
	p.mu.Lock()
	p.overlayFor(pp).deletePending = deleteFile
	p.mu.Unlock()
	return nil
}

// overlayFor returns the overlay of pp, creating it. Caller holds mu.
func (p *Provider) overlayFor(pp string) *overlay {
	ov, ok := p.overlays[pp]
	if !ok {
		ov = &overlay{}
		p.overlays[pp] = ov
	}
	return ov
}

// record builds the metadata of pp from fi and its overlay. Caller holds mu.
func (p *Provider) record(pp string, fi os.FileInfo) codec.Record {
	ov := p.overlayFor(pp)
	if ov.stamp == 0 {
		ov.stamp = codec.FileTime(fi.ModTime())
	}
	rec := codec.Record{
		CreationTime:   ov.stamp,
		LastAccessTime: ov.stamp,
		LastWriteTime:  ov.stamp,
		ChangeTime:     ov.stamp,
	}
	if !fi.IsDir() {
		rec.FileSize = uint64(fi.Size())
		rec.AllocationSize = (rec.FileSize + AllocationUnit - 1) / AllocationUnit * AllocationUnit
	}
	if fi.Mode().Perm()&0200 == 0 {
		rec.FileAttributes |= codec.AttrReadOnly
	}

	if ov.attrsSet {
		rec.FileAttributes = ov.attrs
	}
	if ov.creation != 0 {
		rec.CreationTime = ov.creation
	}
	if ov.access != 0 {
		rec.LastAccessTime = ov.access
	}
	if ov.write != 0 {
		rec.LastWriteTime = ov.write
	}
	if ov.change != 0 {
		rec.ChangeTime = ov.change
	}
	if fi.IsDir() {
		rec.FileAttributes |= codec.AttrDirectory
	}
	return rec
}

// providerName turns a provider path into a billy name.
func providerName(pp string) string {
	if pp == "" {
		return "/"
	}
	return pp
}
