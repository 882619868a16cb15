package sinks

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/arung-agamani/denpa-radio/internal/audio/broadcast"
)

// QueueReader adapts a broadcast.Subscription[[]byte] into an io.ReadCloser:
// the header bytes (if any) followed by the live queue, for as long as the
// caller keeps reading.
type QueueReader struct {
	ctx context.Context
	sub *broadcast.Subscription[[]byte]
	buf bytes.Buffer
}

// NewQueueReader subscribes to q and returns a reader bound to ctx: Read
// returns an error once ctx is cancelled or the queue closes.
func NewQueueReader(ctx context.Context, q *broadcast.Queue[[]byte]) *QueueReader {
	return &QueueReader{ctx: ctx, sub: q.Subscribe()}
}

func (r *QueueReader) Read(p []byte) (int, error) {
	for r.buf.Len() == 0 {
		chunk, _, _, _, err := r.sub.Recv(r.ctx)
		if err != nil {
			return 0, err
		}
		r.buf.Write(chunk)
	}
	return r.buf.Read(p)
}

func (r *QueueReader) Close() error {
	r.sub.Close()
	return nil
}

// icyDefaultMetaInt is the default number of audio bytes between ICY
// metadata blocks.
const icyDefaultMetaInt = 16000

// ICYReader wraps a QueueReader with Shoutcast/Icecast-style ICY metadata
// blocks injected every metaInt bytes of audio: a one-byte length (in
// units of 16 bytes) followed by a `StreamTitle='...';` block zero-padded
// to that length, or a single zero byte when the title hasn't changed
// since the last block.
type ICYReader struct {
	inner      io.ReadCloser
	metaInt    int
	sinceBlock int
	titleFn    func() string
	lastTitle  string
	pending    bytes.Buffer
}

// NewICYReader wraps inner, calling titleFn to get the current stream
// title whenever a metadata block falls due. metaInt<=0 uses
// icyDefaultMetaInt.
func NewICYReader(inner io.ReadCloser, metaInt int, titleFn func() string) *ICYReader {
	if metaInt <= 0 {
		metaInt = icyDefaultMetaInt
	}
	return &ICYReader{inner: inner, metaInt: metaInt, titleFn: titleFn}
}

func (r *ICYReader) Read(p []byte) (int, error) {
	if r.pending.Len() > 0 {
		return r.pending.Read(p)
	}

	want := len(p)
	if remaining := r.metaInt - r.sinceBlock; remaining < want {
		want = remaining
	}
	if want == 0 {
		r.writeMetaBlock()
		r.sinceBlock = 0
		return r.pending.Read(p)
	}

	n, err := r.inner.Read(p[:want])
	r.sinceBlock += n
	if err != nil {
		return n, err
	}
	if r.sinceBlock >= r.metaInt {
		r.writeMetaBlock()
		r.sinceBlock = 0
	}
	return n, nil
}

func (r *ICYReader) writeMetaBlock() {
	title := ""
	if r.titleFn != nil {
		title = r.titleFn()
	}
	if title == r.lastTitle {
		r.pending.WriteByte(0)
		return
	}
	r.lastTitle = title
	body := []byte(fmt.Sprintf("StreamTitle='%s';", escapeICYTitle(title)))
	blocks := (len(body) + 15) / 16
	padded := make([]byte, blocks*16)
	copy(padded, body)
	r.pending.WriteByte(byte(blocks))
	r.pending.Write(padded)
}

func (r *ICYReader) Close() error { return r.inner.Close() }

func escapeICYTitle(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '\'' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
