package gzip

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"
	"time"
)

const defaultLevel = gzip.BestCompression

var writerPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, defaultLevel)
		return w
	},
}

// Encode compresses p with a pooled writer and returns a detached []byte.
// The gzip header is zeroed so equal input gives equal output.
func Encode(p []byte) ([]byte, error) {
	var buf bytes.Buffer

	gw := writerPool.Get().(*gzip.Writer)
	defer writerPool.Put(gw)

	gw.Reset(&buf)
	gw.Header = gzip.Header{ModTime: time.Unix(0, 0)}

	if _, err := gw.Write(p); err != nil {
		_ = gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
