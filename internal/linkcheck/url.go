package linkcheck

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ParseTarget validates an absolute http(s) URL submitted for analysis.
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !isFetchable(u.Scheme) {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u, nil
}

// Resolver turns raw candidates into unique, classified absolute links for a
// single page. It is not safe for concurrent use; create one per job.
type Resolver struct {
	base            *url.URL
	includeExternal bool
	seen            map[string]struct{}
	next            int
}

// NewResolver builds a Resolver for the analysed page.
func NewResolver(base *url.URL, includeExternal bool) *Resolver {
	return &Resolver{
		base:            base,
		includeExternal: includeExternal,
		seen:            make(map[string]struct{}),
	}
}

// Resolve processes one candidate. ok is false when the candidate is dropped:
// non-fetchable schemes, duplicates, and external links when externals are
// excluded.
func (r *Resolver) Resolve(candidate LinkCandidate) (ResolvedLink, bool) {
	raw := strings.TrimSpace(candidate.RawTarget)
	link := ResolvedLink{
		RawTarget:      candidate.RawTarget,
		AnchorText:     candidate.AnchorText,
		Kind:           candidate.Kind,
		Classification: Internal,
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return r.invalid(link, raw, err.Error())
	}
	abs := r.base.ResolveReference(ref)
	if !isFetchable(abs.Scheme) {
		return ResolvedLink{}, false
	}
	if abs.Hostname() == "" {
		return r.invalid(link, raw, "missing host")
	}

	key := NormalizeURL(abs)
	if _, dup := r.seen[key]; dup {
		return ResolvedLink{}, false
	}
	link.Classification = Classify(r.base, abs)
	if link.Classification == External && !r.includeExternal {
		return ResolvedLink{}, false
	}
	r.seen[key] = struct{}{}
	link.URL = key
	link.Index = r.next
	r.next++
	return link, true
}

// ResolveAll runs Resolve over every candidate in order.
func (r *Resolver) ResolveAll(candidates []LinkCandidate) []ResolvedLink {
	out := make([]ResolvedLink, 0, len(candidates))
	for _, c := range candidates {
		if link, ok := r.Resolve(c); ok {
			out = append(out, link)
		}
	}
	return out
}

func (r *Resolver) invalid(link ResolvedLink, raw, reason string) (ResolvedLink, bool) {
	if _, dup := r.seen["invalid:"+raw]; dup {
		return ResolvedLink{}, false
	}
	r.seen["invalid:"+raw] = struct{}{}
	link.URL = raw
	link.Invalid = true
	link.Reason = reason
	link.Index = r.next
	r.next++
	return link, true
}

// Classify reports whether target shares the analysed page's hostname.
func Classify(page, target *url.URL) Classification {
	if strings.EqualFold(page.Hostname(), target.Hostname()) {
		return Internal
	}
	return External
}

// NormalizeURL returns the dedup key of an absolute URL: lower-cased scheme and
// host, default port removed, fragment stripped.
func NormalizeURL(u *url.URL) string {
	clone := *u
	clone.Scheme = strings.ToLower(clone.Scheme)
	host := strings.ToLower(clone.Hostname())
	port := clone.Port()
	if (clone.Scheme == "http" && port == "80") || (clone.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	clone.Host = host
	clone.Fragment = ""
	clone.RawFragment = ""
	return clone.String()
}

func isFetchable(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
