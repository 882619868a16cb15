package radio

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/arung-agamani/denpa-radio/config"
	"github.com/arung-agamani/denpa-radio/internal/audio/pipeline"
	"github.com/arung-agamani/denpa-radio/internal/audio/sinks"
	"github.com/arung-agamani/denpa-radio/internal/audio/sources"
	"github.com/arung-agamani/denpa-radio/internal/audiocache"
	"github.com/arung-agamani/denpa-radio/internal/covers"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
	"github.com/arung-agamani/denpa-radio/internal/playlist"
	"golang.org/x/sync/errgroup"
)

// masterPlaylistAdapter satisfies sources.CacheAwarePlaylist over the
// existing MasterPlaylist's track-selection logic, but never calls
// MasterPlaylist.Next() itself: it subscribes to the master playlist's
// single shared dispatch (see MasterPlaylist.RunDispatch) so that this
// pipeline and the legacy ffmpeg broadcaster, both reading the same
// program, advance through it together rather than racing for the same
// non-replayable cursor. Pop skips any track that isn't already
// FLAC-encoded on disk, since PlaylistSource only speaks FLAC; non-FLAC
// tracks stay reachable only through the legacy ffmpeg-based /stream
// endpoint.
type masterPlaylistAdapter struct {
	master *playlist.MasterPlaylist
	ch     <-chan playlist.TrackDispatch
}

func newMasterPlaylistAdapter(master *playlist.MasterPlaylist) *masterPlaylistAdapter {
	return &masterPlaylistAdapter{master: master, ch: master.Subscribe()}
}

func (a *masterPlaylistAdapter) Pop(ctx context.Context) (*sources.Entry, error) {
	select {
	case d := <-a.ch:
		if d.Err != nil {
			return nil, d.Err
		}
		track := d.Track
		if track == nil || !strings.EqualFold(track.Format, "flac") {
			return nil, nil
		}
		return &sources.Entry{
			CachePk:  track.Checksum,
			FilePath: track.FilePath,
			Metadata: track.ToMetadataHandle(),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *masterPlaylistAdapter) Remaining(ctx context.Context) (int, error) {
	return a.master.TotalTracks(), nil
}

// alwaysCompleteCache adapts audiocache.Cache for PlaylistSource reading
// directly off the music library: files named by this adapter already
// exist in full on disk, so every IsDownloadComplete check trivially
// succeeds and AudioFilePath is never consulted (PlaylistSource uses the
// FilePath already present on each Entry instead).
type alwaysCompleteCache struct{}

func (alwaysCompleteCache) AddFromReader(ctx context.Context, r io.Reader, hint *metadata.Handle) (string, error) {
	return "", audioNotSupported("AddFromReader")
}
func (alwaysCompleteCache) TrackMetadata(ctx context.Context, pk string) (*metadata.Handle, error) {
	return nil, audioNotSupported("TrackMetadata")
}
func (alwaysCompleteCache) IsDownloadComplete(ctx context.Context, pk string) (bool, error) {
	return true, nil
}
func (alwaysCompleteCache) AudioFilePath(ctx context.Context, pk string) (string, error) {
	return "", audioNotSupported("AudioFilePath")
}

func audioNotSupported(op string) error {
	return &unsupportedOpError{op: op}
}

type unsupportedOpError struct{ op string }

func (e *unsupportedOpError) Error() string {
	return "radio: " + e.op + " not supported by the library-backed pipeline cache"
}

// PipelineManager owns the node-and-graph audio pipeline that feeds the
// FLAC and OGG-FLAC live streaming endpoints, running independently of
// the legacy ffmpeg-based Broadcaster.
type PipelineManager struct {
	FLACSink    *sinks.StreamingFLACSink
	OggFLACSink *sinks.StreamingOggFLACSink

	cache  *audiocache.FileCache
	covers covers.Cache
	graph  *pipeline.Graph
}

// NewPipelineManager wires a playback graph: a library-backed playlist
// source feeding both streaming sinks in parallel, so a FLAC client and an
// OGG client hear the same live program from one decode pass.
func NewPipelineManager(cfg *config.Config, master *playlist.MasterPlaylist) (*PipelineManager, error) {
	var cache *audiocache.FileCache
	var coverCache *covers.MemoryCache

	// The audio cache and cover cache directories are independent; create
	// them concurrently rather than serially.
	var g errgroup.Group
	g.Go(func() error {
		c, err := audiocache.NewFileCache(cfg.CacheDir)
		if err != nil {
			return err
		}
		cache = c
		return nil
	})
	g.Go(func() error {
		c, err := covers.NewMemoryCache(cfg.CoversDir)
		if err != nil {
			return err
		}
		coverCache = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	maxLead := time.Duration(cfg.BroadcastMaxLeadSec * float64(time.Second))
	flacSink := sinks.NewStreamingFLACSink(maxLead)
	oggSink := sinks.NewStreamingOggFLACSink(maxLead)

	adapter := newMasterPlaylistAdapter(master)
	source := sources.NewPlaylistSource(adapter, alwaysCompleteCache{})
	source.PollInterval = time.Duration(cfg.PlaylistPollIntervalMs) * time.Millisecond
	source.TailRetryInterval = time.Duration(cfg.TailRetryIntervalMs) * time.Millisecond

	graph := pipeline.NewGraph()
	srcNode := graph.Add(source.Node())
	flacNode := graph.Add(flacSink.Node())
	oggNode := graph.Add(oggSink.Node())

	if err := graph.Connect(srcNode, flacNode); err != nil {
		return nil, err
	}
	if err := graph.Connect(srcNode, oggNode); err != nil {
		return nil, err
	}

	return &PipelineManager{
		FLACSink:    flacSink,
		OggFLACSink: oggSink,
		cache:       cache,
		covers:      coverCache,
		graph:       graph,
	}, nil
}

// Run blocks until ctx is cancelled or the graph finishes without error,
// restarting the graph one second after a failure so a single bad track
// doesn't permanently end the broadcast.
func (m *PipelineManager) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.graph.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("pipeline manager: graph run failed, restarting", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		return
	}
}
