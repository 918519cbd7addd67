package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smallbiznis/prospector/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html><head><title> Acme  Bakery </title><style>body{color:red}</style>
<script>var x = "<p>hidden</p>";</script></head>
<body>
<nav>Home | About</nav>
<h1>Acme Bakery</h1>
<p>Fresh bread  since 1990.<br>Call us: 03-1234-5678</p>
<noscript>Enable JS</noscript>
<ul><li>Wholesale</li><li>Catering</li></ul>
</body></html>`

func TestVisibleText(t *testing.T) {
	title, text, err := VisibleText(strings.NewReader(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "Acme Bakery", title)
	assert.Equal(t, "Home | About\nAcme Bakery\nFresh bread since 1990.\nCall us: 03-1234-5678\nWholesale\nCatering", text)
	assert.NotContains(t, text, "hidden")
	assert.NotContains(t, text, "Enable JS")
	assert.NotContains(t, text, "color")
}

func TestFetchAppliesBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), 20)
	page, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, page.Truncated)
	assert.LessOrEqual(t, len(page.Text), 20)
	assert.Equal(t, "Acme Bakery", page.Title)

	full, err := NewClient(srv.Client(), 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, full.Truncated)
	assert.Contains(t, full.Text, "Catering")
}

func TestFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.Client(), 100).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, executor.KindTransientNetwork, executor.Classify(err))
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	s := "日本語"
	out := truncateUTF8(s, 4)
	assert.Equal(t, "日", out)
}
