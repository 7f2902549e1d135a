package web

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

func rawPage(url, html string) *domain.RawPage {
	return &domain.RawPage{
		URL:        url,
		StatusCode: 200,
		HTML:       []byte(html),
	}
}

func TestNormalise_Success(t *testing.T) {
	normaliser := New()
	ctx := context.Background()

	raw := rawPage("https://www.example.edu/about",
		`<html lang="en"><head><title>About Us</title></head>
		<body><nav>Home | About</nav>
		<main><h1>About the University</h1>
		<p>Founded in 1950.</p>
		<h2>Campus</h2>
		<p>The campus spans forty acres.</p></main>
		<footer>Copyright</footer></body></html>`)

	result, err := normaliser.Normalise(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, result)

	page := result.Page
	assert.NotEmpty(t, page.ID)
	assert.Equal(t, "About Us", page.Title)
	assert.Equal(t, "en", page.Language)
	assert.Equal(t, "https://www.example.edu/about", page.CanonicalURL)

	// Boilerplate outside <main> never reaches the stream.
	assert.NotContains(t, page.Text, "Home | About")
	assert.NotContains(t, page.Text, "Copyright")

	require.Len(t, page.Headings, 2)
	assert.Equal(t, 1, page.Headings[0].Level)
	assert.Equal(t, "About the University", page.Headings[0].Text)
	assert.Equal(t, 2, page.Headings[1].Level)
	assert.Equal(t, "Campus", page.Headings[1].Text)
}

func TestNormalise_HeadingOffsetsIndexText(t *testing.T) {
	normaliser := New()

	raw := rawPage("https://example.edu/",
		`<body><main><h1>Faculty</h1><p>Our people.</p><h2>Jane Doe</h2><p>Professor of CS.</p></main></body>`)

	result, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)

	page := result.Page
	require.Len(t, page.Headings, 2)
	for _, h := range page.Headings {
		got := page.Text[h.Offset : h.Offset+len(h.Text)]
		assert.Equal(t, h.Text, got, "heading offset must index its own text")
	}
	// Strict offset ordering.
	assert.Less(t, page.Headings[0].Offset, page.Headings[1].Offset)
}

func TestNormalise_Determinism(t *testing.T) {
	normaliser := New()
	raw := rawPage("https://example.edu/a",
		`<body><h1>Title</h1><p>Alpha beta gamma.</p><img src="/x.jpg" alt="x"><p>Delta.</p></body>`)

	first, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)
	second, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, first.Page.Text, second.Page.Text)
	assert.Equal(t, first.Page.Headings, second.Page.Headings)
	require.Len(t, second.Images, 1)
	assert.Equal(t, first.Images[0].Offset, second.Images[0].Offset)
}

func TestNormalise_Images(t *testing.T) {
	normaliser := New()

	raw := rawPage("https://example.edu/people/jane",
		`<body><main><h2>Jane Doe</h2>
		<figure><img src="../static/jane.jpg" alt="Jane Doe" width="400" height="300">
		<figcaption>Prof. Jane Doe in the lab</figcaption></figure>
		<p>Jane teaches machine learning.</p></main></body>`)

	result, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, result.Images, 1)

	img := result.Images[0]
	assert.Equal(t, "https://example.edu/static/jane.jpg", img.URL)
	assert.Equal(t, "Jane Doe", img.Alt)
	assert.Equal(t, "Prof. Jane Doe in the lab", img.Caption)
	assert.Equal(t, 400, img.Width)
	assert.Equal(t, 300, img.Height)
	assert.LessOrEqual(t, img.Offset, len(result.Page.Text))

	// The caption text is part of the page stream as well.
	assert.Contains(t, result.Page.Text, "Prof. Jane Doe in the lab")
}

func TestNormalise_EmptyContent(t *testing.T) {
	normaliser := New()

	raw := rawPage("https://example.edu/empty",
		`<body><nav>only chrome</nav><script>var x;</script></body>`)

	result, err := normaliser.Normalise(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
	assert.Nil(t, result)
}

func TestNormalise_NilInput(t *testing.T) {
	normaliser := New()
	result, err := normaliser.Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_NoHeadings(t *testing.T) {
	normaliser := New()

	raw := rawPage("https://example.edu/flat",
		`<body><p>A page without any headings at all.</p></body>`)

	result, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, result.Page.Headings)
	assert.Contains(t, result.Page.Text, "without any headings")
}

func TestNormalise_WhitespaceCollapse(t *testing.T) {
	normaliser := New()

	raw := rawPage("https://example.edu/ws",
		"<body><p>  spaced \n\t   out   </p><p>next</p></body>")

	result, err := normaliser.Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, result.Page.Text, "spaced out")
	assert.False(t, strings.Contains(result.Page.Text, "  "), "no double spaces in stream")
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://WWW.Example.EDU/Path", "https://www.example.edu/Path"},
		{"strips fragment", "https://example.edu/page#section", "https://example.edu/page"},
		{"strips utm params", "https://example.edu/p?utm_source=x&q=1", "https://example.edu/p?q=1"},
		{"strips gclid", "https://example.edu/p?gclid=abc", "https://example.edu/p"},
		{"strips default https port", "https://example.edu:443/page", "https://example.edu/page"},
		{"strips default http port", "http://example.edu:80/page", "http://example.edu/page"},
		{"keeps non-default port", "https://example.edu:8443/page", "https://example.edu:8443/page"},
		{"resolves dot segments", "https://example.edu/a/../b/./c", "https://example.edu/b/c"},
		{"trims trailing slash", "https://example.edu/dir/", "https://example.edu/dir"},
		{"keeps root slash", "https://example.edu/", "https://example.edu/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalURL_SamePage(t *testing.T) {
	a, err := CanonicalURL("https://Example.edu/news/?utm_campaign=fall#top")
	require.NoError(t, err)
	b, err := CanonicalURL("https://example.edu/news")
	require.NoError(t, err)
	assert.Equal(t, b, a)
}
