package resource

import (
	"context"
	"errors"
	"io"
)

// ErrNotSeekable is returned by RateLimitedReader/Writer's Seek when the
// wrapped stream does not implement io.Seeker.
var ErrNotSeekable = errors.New("resource: underlying stream is not seekable")

// RateLimitedReader wraps an io.Reader, charging every Read against a
// Controller's IO token bucket before it reaches the underlying stream.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	rc  *Controller
}

// NewRateLimitedReader wraps r so every Read call first waits for IO tokens
// from rc, bounding sustained throughput to Config.IOLimitBytesPerSec.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, rc: rc}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	if err := r.rc.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Seek delegates to the wrapped reader if it implements io.Seeker.
func (r *RateLimitedReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	return s.Seek(offset, whence)
}

// RateLimitedWriter wraps an io.Writer, charging every Write against a
// Controller's IO token bucket before it reaches the underlying stream.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	rc  *Controller
}

// NewRateLimitedWriter wraps w so every Write call first waits for IO tokens
// from rc, bounding sustained throughput to Config.IOLimitBytesPerSec.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, rc: rc}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.rc.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

// Seek delegates to the wrapped writer if it implements io.Seeker.
func (w *RateLimitedWriter) Seek(offset int64, whence int) (int64, error) {
	s, ok := w.w.(io.Seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	return s.Seek(offset, whence)
}
