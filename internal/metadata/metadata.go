// Package metadata holds track metadata shared between a pipeline's source
// and its downstream sinks through a single mutex-guarded handle, rather than
// copying the data at every node boundary.
package metadata

import (
	"context"
	"errors"
	"sync"
)

// ErrTransientCover marks a cover-art lookup failure that a caller should
// tolerate and retry later rather than treat as fatal.
var ErrTransientCover = errors.New("metadata: transient cover resolution error")

// Handle is a lazily-enriched, concurrency-safe bag of track metadata. A
// TrackBoundary segment carries a *Handle rather than a metadata value so
// that fields discovered after the boundary is emitted (cover art URL,
// cache dedup key) become visible to every sink holding the same handle.
type Handle struct {
	mu sync.RWMutex

	title, artist, album, genre, date, creator string
	trackNumber                                int

	coverURL    string
	coverURLSet bool

	cachePk string
}

// New returns an empty handle.
func New() *Handle {
	return &Handle{}
}

// NewFromFields returns a handle pre-populated from already-known fields,
// e.g. decoded from a file's embedded tags before playback starts.
func NewFromFields(title, artist, album, genre, date, creator string, trackNumber int) *Handle {
	return &Handle{
		title:       title,
		artist:      artist,
		album:       album,
		genre:       genre,
		date:        date,
		creator:     creator,
		trackNumber: trackNumber,
	}
}

func (h *Handle) Title(ctx context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.title, nil
}

func (h *Handle) Artist(ctx context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.artist, nil
}

func (h *Handle) Album(ctx context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.album, nil
}

func (h *Handle) Genre(ctx context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.genre, nil
}

func (h *Handle) Date(ctx context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.date, nil
}

func (h *Handle) Creator(ctx context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.creator, nil
}

func (h *Handle) TrackNumber(ctx context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.trackNumber, nil
}

// CoverURL returns the resolved cover art URL, or an empty string when no
// cover has been set (yet). The error is always nil; a failed resolution
// is not recorded on the handle.
func (h *Handle) CoverURL(ctx context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.coverURLSet {
		return "", nil
	}
	return h.coverURL, nil
}

func (h *Handle) SetTitle(v string)    { h.mu.Lock(); h.title = v; h.mu.Unlock() }
func (h *Handle) SetArtist(v string)   { h.mu.Lock(); h.artist = v; h.mu.Unlock() }
func (h *Handle) SetAlbum(v string)    { h.mu.Lock(); h.album = v; h.mu.Unlock() }
func (h *Handle) SetGenre(v string)    { h.mu.Lock(); h.genre = v; h.mu.Unlock() }
func (h *Handle) SetDate(v string)     { h.mu.Lock(); h.date = v; h.mu.Unlock() }
func (h *Handle) SetCreator(v string)  { h.mu.Lock(); h.creator = v; h.mu.Unlock() }
func (h *Handle) SetTrackNumber(v int) { h.mu.Lock(); h.trackNumber = v; h.mu.Unlock() }

func (h *Handle) SetCoverURL(url string) {
	h.mu.Lock()
	h.coverURL = url
	h.coverURLSet = true
	h.mu.Unlock()
}

// SetCachePk records the content-addressed cache key this track was
// ingested under, once the cache sink has computed it.
func (h *Handle) SetCachePk(pk string) {
	h.mu.Lock()
	h.cachePk = pk
	h.mu.Unlock()
}

func (h *Handle) CachePk() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cachePk
}

// CopyInto copies every field of src into dest. The cache-ingest sink uses
// this to give its own handle (populated as soon as the first tagged chunk
// arrives) the same contents as the source's handle, without the two ever
// sharing a lock.
func CopyInto(ctx context.Context, src, dest *Handle) error {
	if src == nil || dest == nil {
		return nil
	}
	src.mu.RLock()
	title, artist, album, genre, date, creator := src.title, src.artist, src.album, src.genre, src.date, src.creator
	trackNumber := src.trackNumber
	coverURL, coverURLSet := src.coverURL, src.coverURLSet
	cachePk := src.cachePk
	src.mu.RUnlock()

	dest.mu.Lock()
	dest.title, dest.artist, dest.album, dest.genre, dest.date, dest.creator = title, artist, album, genre, date, creator
	dest.trackNumber = trackNumber
	if coverURLSet {
		dest.coverURL, dest.coverURLSet = coverURL, true
	}
	if cachePk != "" {
		dest.cachePk = cachePk
	}
	dest.mu.Unlock()
	return nil
}
