package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preisanalytics/redis-semaphore/internal/compression"
	"github.com/preisanalytics/redis-semaphore/internal/storage/snapshot"
	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/store/memory"
)

func TestSnapshotRoundTrip(t *testing.T) {
	logger.MockLogger()
	ctx := context.Background()

	for _, ct := range []compression.CompressionType{
		compression.None, compression.Gzip, compression.Zstd,
		compression.Bzip2, compression.Flate,
	} {
		name := string(ct)
		if name == "" {
			name = "none"
		}

		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dump.bin")

			src := memory.New()
			require.NoError(t, src.Set(ctx, "str", "value"))
			require.NoError(t, src.RPush(ctx, "list", "a", "b", "c"))
			require.NoError(t, src.HSet(ctx, "hash", "f", "v"))

			saver, err := snapshot.New(src, path, ct)
			require.NoError(t, err)
			require.NoError(t, saver.Save())

			dst := memory.New()
			loader, err := snapshot.New(dst, path, ct)
			require.NoError(t, err)
			require.NoError(t, loader.Load())

			val, err := dst.Get(ctx, "str")
			require.NoError(t, err)
			assert.Equal(t, "value", val)

			vals, err := dst.LRange(ctx, "list")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, vals)

			m, err := dst.HGetAll(ctx, "hash")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"f": "v"}, m)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	logger.MockLogger()

	st := memory.New()
	s, err := snapshot.New(st, filepath.Join(t.TempDir(), "absent.bin"), compression.None)
	require.NoError(t, err)

	assert.NoError(t, s.Load())
}

func TestExpiredKeysNotDumped(t *testing.T) {
	logger.MockLogger()
	ctx := context.Background()

	now := time.Now()
	src := memory.New(memory.WithClock(func() time.Time { return now }))

	require.NoError(t, src.Set(ctx, "keep", "v"))
	require.NoError(t, src.Set(ctx, "drop", "v"))
	require.NoError(t, src.Expire(ctx, "drop", time.Second))
	now = now.Add(2 * time.Second)

	img := src.Dump()
	_, kept := img.Entries["keep"]
	assert.True(t, kept)
	_, dropped := img.Entries["drop"]
	assert.False(t, dropped)
}

func TestRunSavesOnShutdown(t *testing.T) {
	logger.MockLogger()
	ctx, cancel := context.WithCancel(context.Background())

	path := filepath.Join(t.TempDir(), "dump.bin")
	st := memory.New()
	require.NoError(t, st.Set(context.Background(), "k", "v"))

	s, err := snapshot.New(st, path, compression.None)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, 0)
	}()

	cancel()
	<-done

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
