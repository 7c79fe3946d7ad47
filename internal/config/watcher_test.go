package config

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWatcherInitialSnapshot(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :5555\n")
	w, err := NewWatcher(p, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer w.Close()
	require.Equal(t, ":5555", w.Snapshot().Addr)
}

func TestWatcherReloadOnWrite(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :5555\n")

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(p, zerolog.Nop(), func(cfg Config, err error) {
		if err == nil {
			select {
			case reloaded <- cfg:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(p, []byte("addr: :6666\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, ":6666", cfg.Addr)
		require.Equal(t, ":6666", w.Snapshot().Addr)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback not invoked")
	}
}

func TestWatcherReloadOnRenameReplacement(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :5555\n")

	reloads := make(chan Config, 4)
	w, err := NewWatcher(p, zerolog.Nop(), func(cfg Config, err error) {
		if err == nil {
			select {
			case reloads <- cfg:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer w.Close()

	waitFor := func(addr string) {
		deadline := time.After(5 * time.Second)
		for {
			select {
			case cfg := <-reloads:
				if cfg.Addr == addr {
					return
				}
			case <-deadline:
				t.Fatalf("no reload with addr %s", addr)
			}
		}
	}

	// Atomic replacement: write a sibling, rename it over the watched path.
	next := writeTempFile(t, d, "cfg.yaml.tmp", "addr: :7777\n")
	require.NoError(t, os.Rename(next, p))
	waitFor(":7777")
	require.Equal(t, ":7777", w.Snapshot().Addr)

	// The rebound watch keeps firing on plain writes afterwards.
	require.NoError(t, os.WriteFile(p, []byte("addr: :8888\n"), 0o644))
	waitFor(":8888")
}

func TestWatcherBadInitialFile(t *testing.T) {
	_, err := NewWatcher("/no/such/config.yaml", zerolog.Nop(), nil)
	require.Error(t, err)
}
