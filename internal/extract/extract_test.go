package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

func TestExtractDocumentOrder(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
		<a href="/one">  First
		link </a>
		<img src="/logo.png" alt="Logo">
		<p><a href="mailto:me@example.com">mail</a></p>
		<a name="anchor-only">skip</a>
		<img alt="no source">
		<a href="https://other.org/">Other</a>
	</body></html>`)

	got := New(nil).Extract(body)
	require.Equal(t, []linkcheck.LinkCandidate{
		{RawTarget: "/one", AnchorText: "First link", Kind: linkcheck.KindHyperlink},
		{RawTarget: "/logo.png", AnchorText: "Logo", Kind: linkcheck.KindImage},
		{RawTarget: "mailto:me@example.com", AnchorText: "mail", Kind: linkcheck.KindHyperlink},
		{RawTarget: "https://other.org/", AnchorText: "Other", Kind: linkcheck.KindHyperlink},
	}, got)
}

func TestExtractMalformedMarkup(t *testing.T) {
	t.Parallel()

	body := []byte(`<div><a href="/ok">ok<a href=/unquoted>x</div><img src=</p><<<>>`)
	got := New(nil).Extract(body)
	require.NotEmpty(t, got)
	require.Equal(t, "/ok", got[0].RawTarget)
}

func TestExtractEmptyBody(t *testing.T) {
	t.Parallel()

	require.Empty(t, New(nil).Extract(nil))
	require.Empty(t, New(nil).Extract([]byte("plain text, no markup")))
}
