package upstream

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/Borislavv/presentation-gate/pkg/config"
	"github.com/dgraph-io/ristretto"
	"github.com/valyala/fasthttp"
	"github.com/zeebo/xxh3"
)

const (
	numCounters = 1e5
	bufferItems = 64
)

var (
	keyHasherPool = sync.Pool{New: func() any { return xxh3.New() }}
	keySeparator  = []byte{0}
)

var (
	cookieKey        = []byte("Cookie")
	authorizationKey = []byte("Authorization")
	setCookieKey     = []byte("Set-Cookie")
	cacheControlKey  = []byte("Cache-Control")
	varyKey          = []byte("Vary")

	privateDirectives = [][]byte{[]byte("private"), []byte("no-store"), []byte("no-cache")}
	privateVary       = [][]byte{[]byte("*"), []byte("cookie"), []byte("authorization")}
)

// IsCacheableRequest reports whether a request may be answered from the shared cache:
// a GET carrying no credentials.
// Header names are compared case-insensitively since the server keeps them as sent.
func IsCacheableRequest(req *fasthttp.Request) bool {
	if !req.Header.IsGet() {
		return false
	}
	cacheable := true
	req.Header.VisitAll(func(k, _ []byte) {
		if bytes.EqualFold(k, cookieKey) || bytes.EqualFold(k, authorizationKey) {
			cacheable = false
		}
	})
	return cacheable
}

// IsCacheableResponse reports whether an origin response may be shared between clients:
// a 200 without Set-Cookie, without private/no-store/no-cache and not varying on credentials.
func IsCacheableResponse(resp *fasthttp.Response) bool {
	if resp.StatusCode() != fasthttp.StatusOK {
		return false
	}
	cacheable := true
	resp.Header.VisitAll(func(k, v []byte) {
		switch {
		case bytes.EqualFold(k, setCookieKey):
			cacheable = false
		case bytes.EqualFold(k, cacheControlKey):
			if hasToken(v, privateDirectives) {
				cacheable = false
			}
		case bytes.EqualFold(k, varyKey):
			if hasToken(v, privateVary) {
				cacheable = false
			}
		}
	})
	return cacheable
}

// hasToken matches comma separated header tokens, ignoring case and directive arguments.
func hasToken(value []byte, tokens [][]byte) bool {
	for _, part := range bytes.Split(value, []byte(",")) {
		part = bytes.TrimSpace(part)
		if i := bytes.IndexByte(part, '='); i >= 0 {
			part = bytes.TrimSpace(part[:i])
		}
		for _, token := range tokens {
			if bytes.EqualFold(part, token) {
				return true
			}
		}
	}
	return false
}

// Entry is a cached origin response.
type Entry struct {
	status  int
	headers [][2][]byte
	body    []byte
}

// NewEntry copies what is needed to replay resp.
func NewEntry(resp *fasthttp.Response) *Entry {
	e := &Entry{
		status: resp.StatusCode(),
		body:   append([]byte(nil), resp.Body()...),
	}
	resp.Header.VisitAll(func(k, v []byte) {
		e.headers = append(e.headers, [2][]byte{
			append([]byte(nil), k...),
			append([]byte(nil), v...),
		})
	})
	return e
}

// Weight is the cost of the entry in the cache budget.
func (e *Entry) Weight() int64 {
	w := len(e.body)
	for _, kv := range e.headers {
		w += len(kv[0]) + len(kv[1])
	}
	return int64(w)
}

// WriteTo replays the entry into ctx.
func (e *Entry) WriteTo(ctx *fasthttp.RequestCtx) {
	for _, kv := range e.headers {
		ctx.Response.Header.SetBytesKV(kv[0], kv[1])
	}
	ctx.SetStatusCode(e.status)
	ctx.SetBody(e.body)
}

// ResponseCache is a short lived in-memory cache of successful GET responses.
type ResponseCache struct {
	ttl   time.Duration
	cache *ristretto.Cache
}

func NewResponseCache(cfg config.UpstreamCache) (*ResponseCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        bufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init upstream cache: %w", err)
	}
	return &ResponseCache{ttl: cfg.TTL, cache: c}, nil
}

// Key hashes method, request uri and accepted encodings.
func (c *ResponseCache) Key(ctx *fasthttp.RequestCtx) uint64 {
	hasher := keyHasherPool.Get().(*xxh3.Hasher)
	defer func() {
		hasher.Reset()
		keyHasherPool.Put(hasher)
	}()

	_, _ = hasher.Write(ctx.Method())
	_, _ = hasher.Write(keySeparator)
	_, _ = hasher.Write(ctx.RequestURI())
	_, _ = hasher.Write(keySeparator)
	_, _ = hasher.Write(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding))

	return hasher.Sum64()
}

func (c *ResponseCache) Get(key uint64) (*Entry, bool) {
	v, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	e, ok := v.(*Entry)
	return e, ok
}

// Set stores e for the configured ttl. Admission is asynchronous.
func (c *ResponseCache) Set(key uint64, e *Entry) bool {
	return c.cache.SetWithTTL(key, e, e.Weight(), c.ttl)
}

// Wait blocks until pending sets are applied.
func (c *ResponseCache) Wait() {
	c.cache.Wait()
}

func (c *ResponseCache) Close() {
	c.cache.Close()
}
