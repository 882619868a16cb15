// Package sources implements pipeline sources. PlaylistSource reads tracks
// from a playlist, decodes each one progressively from the audio cache
// (which may still be downloading), and emits a continuous segment stream.
package sources

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mewkiz/flac"

	"github.com/arung-agamani/denpa-radio/internal/audio"
	"github.com/arung-agamani/denpa-radio/internal/audio/pipeline"
	"github.com/arung-agamani/denpa-radio/internal/audiocache"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

// Entry is one playlist slot: a cache pk, the on-disk path the cache has
// spooled (or is still spooling) it to, and whatever metadata the
// playlist already knows about the track.
type Entry struct {
	CachePk  string
	FilePath string
	Metadata *metadata.Handle
}

// CacheAwarePlaylist is the playlist collaborator contract PlaylistSource
// is written against. Pop returns (nil, nil) when the playlist is
// momentarily empty (not an error); the source polls again after
// PollInterval.
type CacheAwarePlaylist interface {
	Pop(ctx context.Context) (*Entry, error)
	Remaining(ctx context.Context) (int, error)
}

// HistoryPlaylist receives the cache pk of every track PlaylistSource
// finishes playing, when configured via WithHistory.
type HistoryPlaylist interface {
	Push(ctx context.Context, cachePk string) error
}

const (
	// DefaultChunkMillis is the target duration of each emitted chunk; the
	// actual frame count is rounded up to the next power of two.
	DefaultChunkMillis = 50
	// DefaultPollInterval is how long PlaylistSource waits before retrying
	// Pop after finding the playlist empty.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultPrebufferBytes is the minimum spooled file size PlaylistSource
	// waits for (unless the cache reports the download already complete)
	// before it starts decoding a track.
	DefaultPrebufferBytes = 512 * 1024
	// DefaultPrebufferPollInterval is how often PlaylistSource re-checks a
	// still-downloading file's size during the prebuffer wait.
	DefaultPrebufferPollInterval = 50 * time.Millisecond
	// DefaultTailRetryInterval is how long PlaylistSource waits after
	// hitting EOF on a file that the cache reports as still downloading,
	// before retrying the read.
	DefaultTailRetryInterval = 200 * time.Millisecond
	// minChunkFrames is the floor DefaultChunkMillis is rounded up to.
	minChunkFrames = 256
)

// PlaylistSource is a pipeline source node reading from a CacheAwarePlaylist.
// Its output format is heterogeneous: sample rate and bit depth follow
// whatever each source track actually is, though every chunk within a
// single track is internally consistent (§3 invariant). Callers that need
// a homogeneous output stream insert a resampling/bit-depth-normalizing
// transform node downstream.
type PlaylistSource struct {
	Playlist CacheAwarePlaylist
	Cache    audiocache.Cache
	History  HistoryPlaylist

	ChunkFrames           int // 0 = auto (DefaultChunkMillis rounded to a power of two)
	PollInterval          time.Duration
	PrebufferBytes        int64
	PrebufferPollInterval time.Duration
	TailRetryInterval     time.Duration
}

// NewPlaylistSource returns a PlaylistSource with the package defaults
// applied to every zero-valued tuning field.
func NewPlaylistSource(playlist CacheAwarePlaylist, cache audiocache.Cache) *PlaylistSource {
	return &PlaylistSource{
		Playlist:              playlist,
		Cache:                 cache,
		PollInterval:          DefaultPollInterval,
		PrebufferBytes:        DefaultPrebufferBytes,
		PrebufferPollInterval: DefaultPrebufferPollInterval,
		TailRetryInterval:     DefaultTailRetryInterval,
	}
}

// WithHistory attaches a history playlist that receives every track's
// cache pk once it finishes playing.
func (s *PlaylistSource) WithHistory(h HistoryPlaylist) *PlaylistSource {
	s.History = h
	return s
}

// Node builds the pipeline.Node wrapping this source's Logic.
func (s *PlaylistSource) Node() *pipeline.Node {
	return pipeline.NewSource(s.run, pipeline.Any())
}

func (s *PlaylistSource) run(ctx context.Context, _ <-chan *audio.Segment, out []chan<- *audio.Segment) error {
	for {
		if ctx.Err() != nil {
			sendSegment(ctx, audio.NewEndOfStreamSegment(0, 0), out)
			return nil
		}

		entry, err := s.Playlist.Pop(ctx)
		if err != nil {
			slog.Warn("playlist source: pop failed", "error", err)
			sendSegment(ctx, audio.NewErrorSegment(0, 0, "playlist error: "+err.Error()), out)
			continue
		}
		if entry == nil {
			select {
			case <-time.After(s.PollInterval):
			case <-ctx.Done():
				sendSegment(ctx, audio.NewEndOfStreamSegment(0, 0), out)
				return nil
			}
			continue
		}

		title, _ := entry.Metadata.Title(ctx)
		artist, _ := entry.Metadata.Artist(ctx)
		remaining, _ := s.Playlist.Remaining(ctx)
		slog.Info("playlist source: starting track", "artist", artist, "title", title, "remaining", remaining)

		if err := pipeline.FanOut(ctx, audio.NewTrackBoundarySegment(0, 0, entry.Metadata), out); err != nil {
			return err
		}

		if err := s.decodeAndEmitTrack(ctx, entry, out); err != nil {
			if audio.IsCancelled(err) {
				return err
			}
			slog.Error("playlist source: decode error", "error", err)
			sendSegment(ctx, audio.NewErrorSegment(0, 0, "decode error: "+err.Error()), out)
			continue
		}

		slog.Info("playlist source: finished track", "artist", artist, "title", title)
		if s.History != nil {
			if err := s.History.Push(ctx, entry.CachePk); err != nil {
				slog.Warn("playlist source: failed to push to history", "error", err)
			}
		}
	}
}

func sendSegment(ctx context.Context, seg *audio.Segment, out []chan<- *audio.Segment) {
	_ = pipeline.FanOut(ctx, seg, out)
}

// decodeAndEmitTrack waits for entry's file to reach the prebuffer
// threshold (or for the cache to report it already complete), then decodes
// it as FLAC and emits PCM chunks, transparently tolerating a
// still-downloading file by retrying reads past EOF until the cache marks
// the download complete.
func (s *PlaylistSource) decodeAndEmitTrack(ctx context.Context, entry *Entry, out []chan<- *audio.Segment) error {
	for {
		info, err := os.Stat(entry.FilePath)
		complete, _ := s.Cache.IsDownloadComplete(ctx, entry.CachePk)
		if err == nil && (info.Size() >= s.PrebufferBytes || complete) {
			break
		}
		if err != nil && !complete {
			return audio.IOErrorf(err, "playlist source: stat %s", entry.FilePath)
		}
		select {
		case <-time.After(s.PrebufferPollInterval):
		case <-ctx.Done():
			return audio.Cancelled(ctx.Err())
		}
	}

	f, err := os.Open(entry.FilePath)
	if err != nil {
		return audio.IOErrorf(err, "playlist source: open %s", entry.FilePath)
	}
	defer f.Close()

	tr := &tailReader{ctx: ctx, r: f, cache: s.Cache, pk: entry.CachePk, retryInterval: s.TailRetryInterval}
	stream, err := flac.New(tr)
	if err != nil {
		return audio.DecoderErrorf(err, "playlist source: opening FLAC stream for %s", entry.FilePath)
	}

	sampleRate := stream.Info.SampleRate
	channels := int(stream.Info.NChannels)
	bitsPerSample := int(stream.Info.BitsPerSample)
	if channels < 1 || channels > 2 {
		return audio.Processingf("playlist source: unsupported channel count %d in %s", channels, entry.FilePath)
	}

	sampleType, err := sampleTypeFor(bitsPerSample)
	if err != nil {
		return err
	}

	chunkFrames := s.ChunkFrames
	if chunkFrames <= 0 {
		target := int(float64(sampleRate) * DefaultChunkMillis / 1000.0)
		chunkFrames = nextPowerOfTwo(target)
		if chunkFrames < minChunkFrames {
			chunkFrames = minChunkFrames
		}
	}

	acc := newChunkAccumulator(sampleType, sampleRate, channels, chunkFrames)
	var chunkIndex uint64
	var totalFrames uint64
	emittedTopZero := false

	for {
		if ctx.Err() != nil {
			return audio.Cancelled(ctx.Err())
		}

		frm, ferr := stream.ParseNext()
		if ferr == io.EOF {
			break
		}
		if ferr != nil {
			return audio.DecoderErrorf(ferr, "playlist source: decoding %s", entry.FilePath)
		}

		acc.appendFrame(frm)
		for acc.framesPending() >= chunkFrames {
			chunk := acc.takeChunk(chunkFrames)
			timestampSec := float64(totalFrames) / float64(sampleRate)
			if !emittedTopZero {
				if err := pipeline.FanOut(ctx, audio.NewTopZeroSyncSegment(0, 0), out); err != nil {
					return err
				}
				emittedTopZero = true
			}
			seg := audio.NewChunkSegment(chunkIndex, timestampSec, chunk)
			if err := pipeline.FanOut(ctx, seg, out); err != nil {
				return err
			}
			chunkIndex++
			totalFrames += uint64(chunkFrames)
		}
	}

	if remaining := acc.framesPending(); remaining > 0 {
		chunk := acc.takeChunk(remaining)
		timestampSec := float64(totalFrames) / float64(sampleRate)
		if !emittedTopZero {
			if err := pipeline.FanOut(ctx, audio.NewTopZeroSyncSegment(0, 0), out); err != nil {
				return err
			}
		}
		seg := audio.NewChunkSegment(chunkIndex, timestampSec, chunk)
		if err := pipeline.FanOut(ctx, seg, out); err != nil {
			return err
		}
	}

	if complete, _ := s.Cache.IsDownloadComplete(ctx, entry.CachePk); !complete {
		slog.Warn("playlist source: finished reading cache entry but download is not complete", "pk", entry.CachePk)
	}
	return nil
}

func sampleTypeFor(bitsPerSample int) (audio.SampleType, error) {
	switch bitsPerSample {
	case 16:
		return audio.I16, nil
	case 24:
		return audio.I24, nil
	case 32:
		return audio.I32, nil
	default:
		return 0, audio.Processingf("playlist source: unsupported bit depth %d", bitsPerSample)
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// tailReader wraps a file that may still be growing: a Read that returns 0
// bytes at EOF is retried after retryInterval rather than propagated,
// until the cache reports the pk's download as complete.
type tailReader struct {
	ctx           context.Context
	r             *os.File
	cache         audiocache.Cache
	pk            string
	retryInterval time.Duration
}

func (t *tailReader) Read(p []byte) (int, error) {
	for {
		n, err := t.r.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			if complete, _ := t.cache.IsDownloadComplete(t.ctx, t.pk); complete {
				return 0, io.EOF
			}
			select {
			case <-time.After(t.retryInterval):
				continue
			case <-t.ctx.Done():
				return 0, t.ctx.Err()
			}
		}
		return n, err
	}
}
