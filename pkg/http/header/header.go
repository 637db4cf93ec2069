package header

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

var (
	lastModifiedBytesKey = []byte("Last-Modified")
	cacheStatusBytesKey  = []byte("X-Gate-Cache")
	cacheHitBytes        = []byte("HIT")
	cacheMissBytes       = []byte("MISS")
)

var bufPool = sync.Pool{
	New: func() any {
		sl := make([]byte, 0, 32)
		return &sl
	},
}

// SetLastModifiedValueFastHttp writes Last-Modified in the http date format (always GMT).
func SetLastModifiedValueFastHttp(r *fasthttp.RequestCtx, unixNano int64) {
	buf := bufPool.Get().(*[]byte)
	*buf = fasthttp.AppendHTTPDate((*buf)[:0], time.Unix(0, unixNano))
	r.Response.Header.SetBytesKV(lastModifiedBytesKey, *buf)
	bufPool.Put(buf)
}

// SetCacheStatusFastHttp marks whether the upstream response came from the micro-cache.
func SetCacheStatusFastHttp(r *fasthttp.RequestCtx, hit bool) {
	if hit {
		r.Response.Header.SetBytesKV(cacheStatusBytesKey, cacheHitBytes)
		return
	}
	r.Response.Header.SetBytesKV(cacheStatusBytesKey, cacheMissBytes)
}
