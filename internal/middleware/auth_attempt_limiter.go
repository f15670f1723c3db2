package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// AuthAttemptLimiter throttles repeated authentication failures per source
// address. The gateway runs one instance for client systems probing API key
// values and a separate one for operator token failures, so a lockout on one
// surface never bleeds into the other. A successful authentication clears the
// source's record.
type AuthAttemptLimiter struct {
	mu            sync.Mutex
	sources       map[string]*failureWindow
	maxFailures   int
	window        time.Duration
	blockDuration time.Duration
	lastCleanup   time.Time
	cleanupEvery  time.Duration
	staleEntryTTL time.Duration
}

type failureWindow struct {
	count        int
	since        time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func NewAuthAttemptLimiter(maxFailures int, window, blockDuration time.Duration) *AuthAttemptLimiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if blockDuration <= 0 {
		blockDuration = 15 * time.Minute
	}

	now := time.Now()
	return &AuthAttemptLimiter{
		sources:       make(map[string]*failureWindow),
		maxFailures:   maxFailures,
		window:        window,
		blockDuration: blockDuration,
		lastCleanup:   now,
		cleanupEvery:  5 * time.Minute,
		staleEntryTTL: 24 * time.Hour,
	}
}

// allow reports whether the source may attempt authentication at all. A
// blocked source is refused before any key or token lookup happens.
func (l *AuthAttemptLimiter) allow(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	fw, ok := l.sources[source]
	if !ok {
		l.cleanupLocked(now)
		return true
	}

	fw.lastSeen = now
	if now.Before(fw.blockedUntil) {
		l.cleanupLocked(now)
		return false
	}

	if now.Sub(fw.since) > l.window {
		fw.count = 0
		fw.since = now
	}

	l.cleanupLocked(now)
	return true
}

// registerFailure counts one failed attempt; crossing maxFailures within the
// window blocks the source for blockDuration.
func (l *AuthAttemptLimiter) registerFailure(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	fw, ok := l.sources[source]
	if !ok {
		l.sources[source] = &failureWindow{
			count:    1,
			since:    now,
			lastSeen: now,
		}
		l.cleanupLocked(now)
		return
	}

	fw.lastSeen = now
	if now.Sub(fw.since) > l.window {
		fw.since = now
		fw.count = 0
	}

	fw.count++
	if fw.count >= l.maxFailures {
		fw.blockedUntil = now.Add(l.blockDuration)
		fw.count = 0
		fw.since = now
	}

	l.cleanupLocked(now)
}

func (l *AuthAttemptLimiter) registerSuccess(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.sources, source)
	l.cleanupLocked(time.Now())
}

func (l *AuthAttemptLimiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cleanupEvery {
		return
	}

	for source, fw := range l.sources {
		if now.Sub(fw.lastSeen) > l.staleEntryTTL && now.After(fw.blockedUntil) {
			delete(l.sources, source)
		}
	}

	l.lastCleanup = now
}

// clientIPKey builds the limiter key from a surface prefix and the caller IP,
// keeping API key and operator lockouts separate even for the same host.
func clientIPKey(r *http.Request, prefix string) string {
	host := r.RemoteAddr
	if parsedHost, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = parsedHost
	}
	if host == "" {
		host = "unknown"
	}
	return prefix + ":" + host
}
