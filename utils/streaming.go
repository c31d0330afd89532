// Package utils holds byte-stream helpers shared by the HTTP boundary, the
// CLI and the libvips decoder.
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	apperrors "github.com/Skryldev/image-convert/errors"
)

const defaultChunkSize = 32 * 1024

// bufPool reuses byte buffers to reduce GC pressure.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

func acquireBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func releaseBuffer(b *bytes.Buffer) {
	// Cap large buffers to avoid pinning excessive memory.
	if b.Cap() > 8*1024*1024 {
		return
	}
	bufPool.Put(b)
}

// ReadAll reads r to EOF in chunks, checking ctx between chunks so an
// abandoned upload stops early. When max > 0 an input longer than max bytes
// fails with apperrors.ErrInputTooLarge. The returned slice is owned by the
// caller.
func ReadAll(ctx context.Context, r io.Reader, max int64) ([]byte, error) {
	if max > 0 {
		r = &LimitedReader{R: r, Max: max}
	}
	buf := acquireBuffer()
	defer releaseBuffer(buf)

	chunk := make([]byte, defaultChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// LimitedReader wraps R and fails once more than Max bytes have been read.
// Unlike io.LimitReader it reports the overflow instead of a silent EOF.
type LimitedReader struct {
	R   io.Reader
	Max int64
	n   int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Max <= 0 {
		return l.R.Read(p)
	}
	if l.n > l.Max {
		return 0, l.tooLarge()
	}
	// Allow one byte past the limit so overflow is observable.
	if remain := l.Max + 1 - l.n; int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := l.R.Read(p)
	l.n += int64(n)
	if l.n > l.Max {
		return n, l.tooLarge()
	}
	return n, err
}

func (l *LimitedReader) tooLarge() error {
	return fmt.Errorf("%w: limit is %d bytes", apperrors.ErrInputTooLarge, l.Max)
}
