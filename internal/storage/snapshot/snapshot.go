package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/preisanalytics/redis-semaphore/internal/compression"
	"github.com/preisanalytics/redis-semaphore/pkg/gob"
	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/store/memory"
)

// Snapshotter persists a memory store to a single gob-encoded, optionally
// compressed file, and restores it on boot.
type Snapshotter struct {
	store      *memory.Store
	path       string
	compressor compression.Compressor
}

// New creates a Snapshotter writing to path with the given compression.
func New(st *memory.Store, path string, ct compression.CompressionType) (*Snapshotter, error) {
	if path == "" {
		return nil, errors.New("empty snapshot path")
	}

	compressor, err := compression.New(ct)
	if err != nil {
		return nil, fmt.Errorf("init snapshot compressor: %w", err)
	}

	return &Snapshotter{store: st, path: path, compressor: compressor}, nil
}

// Load restores the store from the snapshot file. A missing file is not an
// error, the store simply starts empty.
func (s *Snapshotter) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("no snapshot found, starting empty", zap.String("path", s.path))
			return nil
		}

		return fmt.Errorf("read snapshot: %w", err)
	}

	data, err := s.compressor.Decompress(raw)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}

	var img memory.Image
	if err := gob.Decode(data, &img); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.store.Restore(img)
	logger.Info("snapshot restored",
		zap.String("path", s.path), zap.Int("keys", len(img.Entries)))

	return nil
}

// Save writes the current store image atomically (temp file plus rename).
func (s *Snapshotter) Save() error {
	img := s.store.Dump()

	data, err := gob.Encode(img)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	data, err = s.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	logger.Debug("snapshot saved",
		zap.String("path", s.path), zap.Int("keys", len(img.Entries)))

	return nil
}

// Run saves on every tick of interval until ctx is done, then takes a final
// save so a clean shutdown never loses state. A zero interval disables the
// periodic part.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if err := s.Save(); err != nil {
				logger.Error("periodic snapshot failed", zap.Error(err))
			}
		case <-ctx.Done():
			if err := s.Save(); err != nil {
				logger.Error("final snapshot failed", zap.Error(err))
			}
			return
		}
	}
}
