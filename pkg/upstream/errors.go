package upstream

import "errors"

var (
	ErrUpstreamUnavailable = errors.New("upstream is unavailable")
	ErrRateLimited         = errors.New("upstream rate limit exceeded")
	ErrInvalidUpstreamURL  = errors.New("invalid upstream url")
)
