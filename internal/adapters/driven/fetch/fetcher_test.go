package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

func TestFetchSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, srv.URL, page.URL)
	assert.Equal(t, 200, page.StatusCode)
	assert.Contains(t, string(page.HTML), "hello")
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.False(t, page.FetchedAt.IsZero())
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>moved</body></html>"))
	})

	f := New(Config{})
	page, err := f.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", page.FinalURL)
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, domain.ErrFetchFailure)
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, domain.ErrFetchFailure)
}

func TestFetchUnreachable(t *testing.T) {
	f := New(Config{})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/nope")
	assert.ErrorIs(t, err, domain.ErrFetchFailure)
}
