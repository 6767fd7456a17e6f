package linkcheck

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "https", raw: "https://example.com/page"},
		{name: "http with spaces", raw: "  http://example.com  "},
		{name: "empty", raw: "", wantErr: true},
		{name: "relative", raw: "/about", wantErr: true},
		{name: "ftp", raw: "ftp://example.com/file", wantErr: true},
		{name: "missing host", raw: "https:///path", wantErr: true},
		{name: "garbage", raw: "http://[::1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTarget(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestResolverResolvesAndClassifies(t *testing.T) {
	t.Parallel()

	base := mustParse(t, "https://Example.com/blog/post")
	r := NewResolver(base, true)
	links := r.ResolveAll([]LinkCandidate{
		{RawTarget: "/about", AnchorText: "About", Kind: KindHyperlink},
		{RawTarget: "related", Kind: KindHyperlink},
		{RawTarget: "https://EXAMPLE.com/contact", Kind: KindHyperlink},
		{RawTarget: "https://other.org/x.png", AnchorText: "logo", Kind: KindImage},
	})

	require.Len(t, links, 4)
	require.Equal(t, "https://example.com/about", links[0].URL)
	require.Equal(t, Internal, links[0].Classification)
	require.Equal(t, "About", links[0].AnchorText)
	require.Equal(t, "https://example.com/blog/related", links[1].URL)
	require.Equal(t, Internal, links[2].Classification)
	require.Equal(t, External, links[3].Classification)
	require.Equal(t, KindImage, links[3].Kind)
	for i, link := range links {
		require.Equal(t, i, link.Index)
	}
}

func TestResolverDropsNonFetchableSchemes(t *testing.T) {
	t.Parallel()

	r := NewResolver(mustParse(t, "https://example.com/"), true)
	links := r.ResolveAll([]LinkCandidate{
		{RawTarget: "mailto:hi@example.com"},
		{RawTarget: "tel:+15555555555"},
		{RawTarget: "javascript:void(0)"},
		{RawTarget: "data:image/png;base64,AAAA"},
		{RawTarget: "ftp://example.com/file"},
	})
	require.Empty(t, links)
}

func TestResolverDeduplicates(t *testing.T) {
	t.Parallel()

	r := NewResolver(mustParse(t, "https://example.com/"), true)
	links := r.ResolveAll([]LinkCandidate{
		{RawTarget: "/docs", AnchorText: "first"},
		{RawTarget: "/docs#install", AnchorText: "second"},
		{RawTarget: "HTTPS://EXAMPLE.COM:443/docs", AnchorText: "third"},
		{RawTarget: "https://example.com/docs?x=1"},
	})

	require.Len(t, links, 2)
	require.Equal(t, "first", links[0].AnchorText)
	require.Equal(t, "https://example.com/docs?x=1", links[1].URL)
}

func TestResolverExcludesExternalWhenDisabled(t *testing.T) {
	t.Parallel()

	r := NewResolver(mustParse(t, "https://example.com/"), false)
	links := r.ResolveAll([]LinkCandidate{
		{RawTarget: "/ok"},
		{RawTarget: "https://elsewhere.net/"},
	})
	require.Len(t, links, 1)
	require.Equal(t, Internal, links[0].Classification)
}

func TestResolverMarksInvalidTargets(t *testing.T) {
	t.Parallel()

	r := NewResolver(mustParse(t, "https://example.com/"), false)
	links := r.ResolveAll([]LinkCandidate{
		{RawTarget: "http://[::1"},
		{RawTarget: "http://[::1"},
		{RawTarget: "%zz"},
	})
	require.Len(t, links, 2)
	for _, link := range links {
		require.True(t, link.Invalid)
		require.Equal(t, Internal, link.Classification)
		require.NotEmpty(t, link.Reason)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "http://example.com/a", NormalizeURL(mustParse(t, "HTTP://Example.COM:80/a#frag")))
	require.Equal(t, "https://example.com:8443/a", NormalizeURL(mustParse(t, "https://example.com:8443/a")))
	require.Equal(t, "http://[::1]/", NormalizeURL(mustParse(t, "http://[::1]:80/")))
}
