package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/visitorlabs/profiler/internal/profile"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Movie Blog</title>
  <style>body { color: red; }</style>
</head>
<body>
  <script>console.log("tracker");</script>
  <h1>Movie   Reviews</h1>
  <p>Action and drama,
     every week.</p>
  <noscript>Enable JS</noscript>
</body>
</html>`

func TestFetchExtractsVisibleText(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "profiler-test/1.0", Timeout: 5 * time.Second})
	result, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Equal(t, "Movie Reviews Action and drama, every week.", result.Text)
	require.Equal(t, srv.URL, result.URL)
	require.Equal(t, "profiler-test/1.0", gotUA)
	require.Greater(t, result.Duration, time.Duration(0))
}

func TestFetchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	var fetchErr *profile.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, srv.URL, fetchErr.URL)
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/none")
	var fetchErr *profile.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestExtractTextFallsBackWithoutBody(t *testing.T) {
	t.Parallel()

	text, err := extractText([]byte("just plain text"))
	require.NoError(t, err)
	require.Equal(t, "just plain text", text)
}
