package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"innov8/internal/store"
)

// Builder owns the current snapshot. Readers get the last fully built
// snapshot; a rebuild swaps the new one in atomically.
type Builder struct {
	src    store.SnapshotSource
	marker string
	cur    atomic.Pointer[Snapshot]
	mu     sync.Mutex // serializes rebuilds
	log    *slog.Logger
}

// NewBuilder creates a Builder reading from src. marker is the path of the
// refresh-signal file; empty disables signal handling.
func NewBuilder(src store.SnapshotSource, marker string, log *slog.Logger) *Builder {
	return &Builder{
		src:    src,
		marker: marker,
		log:    log.With("component", "snapshot"),
	}
}

// Current returns the last built snapshot, or nil before the first Load.
func (b *Builder) Current() *Snapshot {
	return b.cur.Load()
}

// Load returns the current snapshot, rebuilding it first when force is set,
// when no snapshot has been built yet, or when the refresh signal is
// present. The signal is consumed when the rebuild starts reading. On a
// failed rebuild the signal is restored, and the previous snapshot stays
// current and is returned with the error.
func (b *Builder) Load(ctx context.Context, force bool) (*Snapshot, error) {
	if cur := b.cur.Load(); cur != nil && !force && !b.signalled() {
		return cur, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// A concurrent caller may have rebuilt while we waited.
	cur := b.cur.Load()
	if cur != nil && !force && !b.signalled() {
		return cur, nil
	}

	// Consume before reading: a signal written during the read must survive.
	consumed := b.consumeSignal()

	start := time.Now()
	snap, err := Build(ctx, b.src)
	if err != nil {
		if consumed {
			if werr := b.Signal(); werr != nil {
				b.log.Warn("restoring refresh signal", "path", b.marker, "error", werr)
			}
		}
		return cur, err
	}
	b.cur.Store(snap)

	b.log.Info("snapshot built",
		"rows", snap.Len(),
		"symbols", snap.symbols.Len(),
		"sectors", snap.sectors.Len(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return snap, nil
}

// Signal writes the refresh-signal marker so that every process holding a
// snapshot rebuilds on its next Load.
func (b *Builder) Signal() error {
	if b.marker == "" {
		return nil
	}
	return WriteSignal(b.marker)
}

// consumeSignal removes the marker and reports whether it was present.
func (b *Builder) consumeSignal() bool {
	if b.marker == "" {
		return false
	}
	err := os.Remove(b.marker)
	switch {
	case err == nil:
		return true
	case errors.Is(err, fs.ErrNotExist):
		return false
	default:
		b.log.Warn("removing refresh signal", "path", b.marker, "error", err)
		return false
	}
}

func (b *Builder) signalled() bool {
	if b.marker == "" {
		return false
	}
	_, err := os.Stat(b.marker)
	return err == nil
}

// WriteSignal creates the zero-byte refresh-signal file at path.
func WriteSignal(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating signal dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing refresh signal: %w", err)
	}
	return f.Close()
}
