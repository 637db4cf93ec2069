package br

import (
	"bytes"
	"io"
	"sync"

	abrotli "github.com/andybalholm/brotli"
)

const defaultQuality = abrotli.BestCompression

var writerPool = sync.Pool{
	New: func() any {
		// Quality is fixed at creation time and persists across Reset.
		return abrotli.NewWriterLevel(io.Discard, defaultQuality)
	},
}

// Encode compresses p with a pooled writer and returns a detached []byte.
func Encode(p []byte) ([]byte, error) {
	var buf bytes.Buffer

	bw := writerPool.Get().(*abrotli.Writer)
	defer writerPool.Put(bw)

	bw.Reset(&buf)
	if _, err := bw.Write(p); err != nil {
		_ = bw.Close()
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
