package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	log "github.com/sirupsen/logrus"

	"metabridge/internal/config"
	"metabridge/internal/provider/billyfs"
	"metabridge/internal/provider/sqlstore"
	"metabridge/internal/transport"
	"metabridge/internal/vfs"
)

// backend is a provider that can also open and close files.
type backend interface {
	transport.Provider
	open(ctx context.Context, name string) (vfs.OpenParams, error)
	closeFile(ctx context.Context, userContext uint64) error
	shutdown() error
}

type dirBackend struct {
	*billyfs.Provider
}

func (b dirBackend) open(_ context.Context, name string) (vfs.OpenParams, error) {
	return b.Open(name)
}

func (b dirBackend) closeFile(_ context.Context, uc uint64) error {
	return b.Close(uc)
}

func (dirBackend) shutdown() error { return nil }

type storeBackend struct {
	*sqlstore.Store
}

func (b storeBackend) open(ctx context.Context, name string) (vfs.OpenParams, error) {
	return b.OpenFile(ctx, name)
}

func (b storeBackend) closeFile(ctx context.Context, uc uint64) error {
	return b.CloseFile(ctx, uc)
}

func (b storeBackend) shutdown() error { return b.Store.Close() }

// session is one volume over one backend, served through a queue.
type session struct {
	backend backend
	queue   *transport.Queue
	volume  *vfs.Volume
}

// openSession serves the directory root when set, otherwise the metadata
// store at storePath (or the configured store).
func openSession(settings *config.Settings, root, storePath string) (*session, error) {
	var b backend
	if root != "" {
		log.Debugf("[CLI] serving directory %s", root)
		b = dirBackend{billyfs.New(osfs.New(root))}
	} else {
		if storePath == "" {
			storePath = settings.StorePath
		}
		log.Debugf("[CLI] serving store %s", storePath)
		s, err := sqlstore.Open(storePath, sqlstore.Options{BusyTimeout: settings.BusyTimeoutMs})
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		b = storeBackend{s}
	}

	q := transport.NewQueue(b, transport.QueueOptions{Workers: settings.Workers})
	return &session{
		backend: b,
		queue:   q,
		volume:  vfs.NewVolume(settings.VolumeParams(), q, settings.Oracle()),
	}, nil
}

// open opens name on the backend and registers it with the volume. The
// returned func closes both.
func (s *session) open(ctx context.Context, name string) (vfs.HandleID, func() error, error) {
	p, err := s.backend.open(ctx, name)
	if err != nil {
		return 0, nil, err
	}
	h := s.volume.Open(p)
	closeFn := func() error {
		if err := s.volume.Close(h); err != nil {
			return err
		}
		return s.backend.closeFile(ctx, p.UserContext)
	}
	return h, closeFn, nil
}

func (s *session) Close() error {
	if n := s.volume.Shutdown(); n > 0 {
		log.Debugf("[CLI] dropped %d open handles", n)
	}
	if err := s.queue.Close(5 * time.Second); err != nil {
		log.Warnf("[CLI] queue close: %v", err)
	}
	return s.backend.shutdown()
}
