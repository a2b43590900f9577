package composition_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tauraamui/framecache/pkg/composition"
)

func TestWatchReloadsCompositionWhenFileIsWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intro.json")
	require.NoError(t, os.WriteFile(path, []byte(testDocument), 0644))
	c, err := composition.Load(path)
	require.NoError(t, err)
	before := c.ContentVersion()

	reloaded := make(chan error, 8)
	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan error)
	go func() {
		watchDone <- composition.Watch(ctx, c, path, func(err error) {
			select {
			case reloaded <- err:
			default:
			}
		})
	}()

	// give the watcher time to register before writing
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"width": 64, "height": 64, "duration_us": 500000, "frame_rate": 24}`), 0644))

	// truncation may be seen before the content lands, wait for a clean reload
	timeout := time.After(5 * time.Second)
	for ok := false; !ok; {
		select {
		case err := <-reloaded:
			ok = err == nil
		case <-timeout:
			t.Fatal("composition was not reloaded")
		}
	}

	cancel()
	require.NoError(t, <-watchDone)
	require.Equal(t, 64, c.Width())
	require.Greater(t, c.ContentVersion(), before)
}

func TestWatchFailsForMissingDirectory(t *testing.T) {
	c := composition.New(1, 1, 1, 1)
	err := composition.Watch(context.Background(), c, filepath.Join(t.TempDir(), "gone", "intro.json"), nil)
	require.Error(t, err)
}
