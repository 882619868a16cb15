// Package audiocache implements the cache collaborator the cache-ingest
// sink drives: a content-addressed store of complete and
// still-downloading FLAC files, keyed by a hash of the audio payload so
// that two ingestions of the same track dedup to one file on disk.
package audiocache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/arung-agamani/denpa-radio/internal/audio"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

// Cache is the collaborator contract the cache-ingest sink is written
// against (§6 of the design notes): add a track from a byte stream,
// inspect whether it finished downloading, resolve its metadata, and find
// its file path for progressive reads.
type Cache interface {
	AddFromReader(ctx context.Context, r io.Reader, hint *metadata.Handle) (pk string, err error)
	TrackMetadata(ctx context.Context, pk string) (*metadata.Handle, error)
	IsDownloadComplete(ctx context.Context, pk string) (bool, error)
	AudioFilePath(ctx context.Context, pk string) (string, error)
}

// PkPrefixLen is how many bytes of audio payload (after skipping FLAC's
// fixed header) are hashed to derive a dedup key. Using a prefix rather
// than the whole file lets two concurrent ingestions of the same track
// dedup before either has finished downloading, and lets a producer
// writing the bytes (e.g. the cache-ingest sink) derive the same pk this
// package will before AddFromReader itself returns.
const PkPrefixLen = 4096

// FlacFixedHeaderLen is the size of the "fLaC" marker plus a STREAMINFO
// metadata block header and body, which is excluded from the dedup hash
// so that re-encodes with different container metadata still match.
const FlacFixedHeaderLen = 42

const pkPrefixLen = PkPrefixLen
const flacFixedHeaderLen = FlacFixedHeaderLen

// ComputePk derives the dedup key AddFromReader would assign to a stream
// whose first PkPrefixLen+FlacFixedHeaderLen bytes are prefix.
func ComputePk(prefix []byte) string { return computePk(prefix) }

func computePk(prefix []byte) string {
	payload := prefix
	if len(payload) > flacFixedHeaderLen {
		payload = payload[flacFixedHeaderLen:]
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type entry struct {
	metadata *metadata.Handle
	path     string
	complete bool
	size     int64
}

// FileCache is a filesystem-backed Cache implementation: every distinct
// track is spooled to its own file under dir, named by its pk.
type FileCache struct {
	mu      sync.RWMutex
	dir     string
	entries map[string]*entry
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, audio.IOErrorf(err, "audiocache: creating cache dir %s", dir)
	}
	return &FileCache{dir: dir, entries: make(map[string]*entry)}, nil
}

func (c *FileCache) registerProvisional(pk string, hint *metadata.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[pk]; ok {
		return
	}
	e := &entry{}
	if hint != nil {
		e.metadata = metadata.New()
		_ = metadata.CopyInto(context.Background(), hint, e.metadata)
	}
	c.entries[pk] = e
}

// AddFromReader spools r to a temporary file, deriving pk once the first
// pkPrefixLen bytes of audio payload are available so that a concurrent
// ingestion of the same track can dedup against this one before either
// finishes. The final rename only happens once r reaches EOF; callers
// query IsDownloadComplete to find out when that has happened.
func (c *FileCache) AddFromReader(ctx context.Context, r io.Reader, hint *metadata.Handle) (string, error) {
	tmp, err := os.CreateTemp(c.dir, "ingest-*.tmp")
	if err != nil {
		return "", audio.IOErrorf(err, "audiocache: creating temp file")
	}
	defer tmp.Close()

	var prefix bytes.Buffer
	var pk string
	var total int64
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return "", audio.Cancelled(ctx.Err())
		default:
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				return "", audio.IOErrorf(werr, "audiocache: writing ingest spool")
			}
			total += int64(n)
			if pk == "" && prefix.Len() < flacFixedHeaderLen+pkPrefixLen {
				need := flacFixedHeaderLen + pkPrefixLen - prefix.Len()
				if need > n {
					need = n
				}
				prefix.Write(buf[:need])
				if prefix.Len() >= flacFixedHeaderLen+pkPrefixLen {
					pk = computePk(prefix.Bytes())
					c.registerProvisional(pk, hint)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", audio.IOErrorf(rerr, "audiocache: reading ingest source")
		}
	}
	if pk == "" {
		pk = computePk(prefix.Bytes())
		c.registerProvisional(pk, hint)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.entries[pk]; existing != nil && existing.complete {
		// Identical payload already cached by another ingestion; drop our
		// spool and report the existing entry's pk.
		os.Remove(tmp.Name())
		return pk, nil
	}

	finalPath := filepath.Join(c.dir, pk+".flac")
	tmp.Close()
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", audio.IOErrorf(err, "audiocache: finalizing ingest for pk %s", pk)
	}

	e := c.entries[pk]
	if e == nil {
		e = &entry{}
		c.entries[pk] = e
	}
	e.path = finalPath
	e.size = total
	e.complete = true
	if hint != nil {
		if e.metadata == nil {
			e.metadata = metadata.New()
		}
		_ = metadata.CopyInto(ctx, hint, e.metadata)
	}
	return pk, nil
}

func (c *FileCache) TrackMetadata(ctx context.Context, pk string) (*metadata.Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[pk]
	if !ok {
		return nil, audio.Processingf("audiocache: unknown pk %q", pk)
	}
	return e.metadata, nil
}

func (c *FileCache) IsDownloadComplete(ctx context.Context, pk string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[pk]
	if !ok {
		return false, audio.Processingf("audiocache: unknown pk %q", pk)
	}
	return e.complete, nil
}

func (c *FileCache) AudioFilePath(ctx context.Context, pk string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[pk]
	if !ok || e.path == "" {
		return "", audio.Processingf("audiocache: no spooled file yet for pk %q", pk)
	}
	return e.path, nil
}
