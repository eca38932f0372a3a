package interceptors

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

// unixTimestampThreshold separates Unix timestamps from relative seconds in
// reset headers.
const unixTimestampThreshold = 1_000_000_000

// RateLimitInfo holds parsed rate limit header values.
type RateLimitInfo struct {
	Limit     *int
	Remaining *int
	ResetAt   *time.Time
	ResetRaw  string
}

// Meta returns a JSON-ready map for CLI output metadata.
func (r *RateLimitInfo) Meta() map[string]any {
	if r == nil {
		return nil
	}
	meta := map[string]any{}
	if r.Limit != nil {
		meta["limit"] = *r.Limit
	}
	if r.Remaining != nil {
		meta["remaining"] = *r.Remaining
	}
	if r.ResetAt != nil {
		meta["reset_at"] = r.ResetAt.UTC().Format(time.RFC3339)
	} else if r.ResetRaw != "" {
		meta["reset"] = r.ResetRaw
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func (r *RateLimitInfo) clone() *RateLimitInfo {
	if r == nil {
		return nil
	}
	out := *r
	if r.Limit != nil {
		v := *r.Limit
		out.Limit = &v
	}
	if r.Remaining != nil {
		v := *r.Remaining
		out.Remaining = &v
	}
	if r.ResetAt != nil {
		t := *r.ResetAt
		out.ResetAt = &t
	}
	return &out
}

// RateLimit records the rate limit headers of every response it sees. A
// single RateLimit may be shared by concurrent requests.
type RateLimit struct {
	now func() time.Time

	mu   sync.Mutex
	last *RateLimitInfo
}

var _ connection.ResponseInterceptor = (*RateLimit)(nil)

// NewRateLimit creates an empty recorder.
func NewRateLimit() *RateLimit {
	return &RateLimit{now: time.Now}
}

// OnResponse implements connection.ResponseInterceptor. Responses without
// rate limit headers leave the previous snapshot in place.
func (r *RateLimit) OnResponse(_ context.Context, _ connection.Request, resp *connection.Response, _ connection.Invoker) (*connection.Response, error) {
	if resp == nil {
		return resp, nil
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	if info := parseRateLimitInfo(resp.Headers, now()); info != nil {
		r.mu.Lock()
		r.last = info
		r.mu.Unlock()
	}
	return resp, nil
}

// Last returns a copy of the most recent rate limit info, or nil.
func (r *RateLimit) Last() *RateLimitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last.clone()
}

func parseRateLimitInfo(h http.Header, now time.Time) *RateLimitInfo {
	if h == nil {
		return nil
	}
	limitVal := firstHeader(h, "X-RateLimit-Limit", "RateLimit-Limit")
	remainingVal := firstHeader(h, "X-RateLimit-Remaining", "RateLimit-Remaining")
	resetVal := firstHeader(h, "X-RateLimit-Reset", "RateLimit-Reset")
	if limitVal == "" && remainingVal == "" && resetVal == "" {
		return nil
	}

	info := &RateLimitInfo{}
	if v, err := strconv.Atoi(limitVal); err == nil {
		info.Limit = &v
	}
	if v, err := strconv.Atoi(remainingVal); err == nil {
		info.Remaining = &v
	}
	if resetVal != "" {
		info.ResetRaw = resetVal
		if t, ok := parseRateLimitReset(resetVal, now); ok {
			info.ResetAt = &t
		}
	}
	if info.Limit == nil && info.Remaining == nil && info.ResetRaw == "" {
		return nil
	}
	return info
}

func firstHeader(h http.Header, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(h.Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseRateLimitReset(value string, now time.Time) (time.Time, bool) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		switch {
		case secs > unixTimestampThreshold:
			return time.Unix(secs, 0).UTC(), true
		case secs >= 0:
			return now.Add(time.Duration(secs) * time.Second).UTC(), true
		}
	}
	if t, err := http.ParseTime(value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
