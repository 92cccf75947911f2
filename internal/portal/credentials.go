package portal

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Credentials is the session/auth pair the portal requires on every request.
type Credentials struct {
	SessionCookie string
	UserToken     string
}

// CredentialStore holds the single active Credentials value. Updates swap the
// whole value, so readers never observe a half-applied refresh.
type CredentialStore struct {
	cur atomic.Pointer[Credentials]
}

// NewCredentialStore creates a store seeded with the given credentials.
func NewCredentialStore(initial Credentials) *CredentialStore {
	s := &CredentialStore{}
	s.cur.Store(&initial)
	return s
}

// Load returns the latest credentials.
func (s *CredentialStore) Load() Credentials {
	return *s.cur.Load()
}

// Update derives new credentials from the current value and installs them.
// fn may run more than once if another update lands concurrently.
func (s *CredentialStore) Update(fn func(Credentials) Credentials) Credentials {
	for {
		old := s.cur.Load()
		next := fn(*old)
		if s.cur.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// refreshFrom folds the credential-bearing headers of a portal response into
// cur. It reports false when the response carried nothing new.
func refreshFrom(cur Credentials, h http.Header, now time.Time) (Credentials, bool) {
	changed := false
	if tok := strings.TrimSpace(h.Get(userTokenHeader)); tok != "" && tok != cur.UserToken {
		cur.UserToken = tok
		changed = true
	}
	if lines := h.Values("Set-Cookie"); len(lines) > 0 {
		merged := mergeCookies(cur.SessionCookie, lines, now)
		if merged != cur.SessionCookie {
			cur.SessionCookie = merged
			changed = true
		}
	}
	return cur, changed
}

type cookiePair struct {
	name  string
	value string
}

func parseCookieHeader(header string) []cookiePair {
	var pairs []cookiePair
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		pairs = append(pairs, cookiePair{name: strings.TrimSpace(name), value: value})
	}
	return pairs
}

// mergeCookies applies Set-Cookie lines to a Cookie request header, keeping
// the original order and appending new cookies at the end. Expired or
// emptied cookies are removed.
func mergeCookies(header string, setCookies []string, now time.Time) string {
	pairs := parseCookieHeader(header)
	index := make(map[string]int, len(pairs))
	for i, p := range pairs {
		index[p.name] = i
	}

	removed := make(map[string]bool)
	for _, line := range setCookies {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		expired := c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) || c.Value == ""
		if i, ok := index[c.Name]; ok {
			if expired {
				removed[c.Name] = true
				continue
			}
			pairs[i].value = c.Value
			delete(removed, c.Name)
			continue
		}
		if expired {
			continue
		}
		index[c.Name] = len(pairs)
		pairs = append(pairs, cookiePair{name: c.Name, value: c.Value})
	}

	var sb strings.Builder
	for _, p := range pairs {
		if removed[p.name] {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(p.name)
		sb.WriteByte('=')
		sb.WriteString(p.value)
	}
	return sb.String()
}
