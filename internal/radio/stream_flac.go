package radio

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/arung-agamani/denpa-radio/internal/audio/broadcast"
	"github.com/arung-agamani/denpa-radio/internal/audio/sinks"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

// flacStreamHandler serves the live program as a raw FLAC byte stream
// (audio/x-flac), one subscription per client against the pipeline's
// broadcast queue.
func (s *Server) flacStreamHandler(w http.ResponseWriter, r *http.Request) {
	s.streamFrom(w, r, s.pipeline.FLACSink.Queue, "audio/x-flac", s.pipeline.FLACSink.CurrentMetadata)
}

// oggStreamHandler serves the live program chained into OGG logical
// bitstreams carrying FLAC frames, per the FLAC-in-Ogg mapping.
func (s *Server) oggStreamHandler(w http.ResponseWriter, r *http.Request) {
	s.streamFrom(w, r, s.pipeline.OggFLACSink.Queue, "application/ogg", s.pipeline.OggFLACSink.CurrentMetadata)
}

func (s *Server) streamFrom(w http.ResponseWriter, r *http.Request, q *broadcast.Queue[[]byte], contentType string, currentMetadata func() *metadata.Handle) {
	ctx := r.Context()
	qr := sinks.NewQueueReader(ctx, q)
	defer qr.Close()

	sessionID := uuid.NewString()
	slog.Info("stream client connected", "session", sessionID, "content_type", contentType, "remote", r.RemoteAddr)
	defer slog.Info("stream client disconnected", "session", sessionID)

	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")

	var reader io.ReadCloser = qr
	if r.Header.Get("Icy-MetaData") == "1" {
		metaInt := s.config.IcyMetaInt
		if metaInt <= 0 {
			metaInt = 16000
		}
		w.Header().Set("icy-metaint", strconv.Itoa(metaInt))
		w.Header().Set("icy-name", s.config.StationName)
		reader = sinks.NewICYReader(qr, metaInt, func() string {
			return s.pipelineTrackTitle(currentMetadata())
		})
	}

	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			slog.Debug("stream read ended", "session", sessionID, "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// pipelineTrackTitle reports the "Artist - Title" string for ICY metadata,
// read from the handle the FLAC/OGG pipeline's own sink last saw at a
// TrackBoundary, not from the legacy ffmpeg Broadcaster's state (the two
// stacks track independent encodes of the same program).
func (s *Server) pipelineTrackTitle(md *metadata.Handle) string {
	if md == nil {
		return s.config.StationName
	}
	ctx := context.Background()
	title, _ := md.Title(ctx)
	artist, _ := md.Artist(ctx)
	if title == "" {
		return s.config.StationName
	}
	if artist == "" {
		return title
	}
	return artist + " - " + title
}
