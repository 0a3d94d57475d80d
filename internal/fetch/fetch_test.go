package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Test</h1></body></html>"))
	}))
	defer server.Close()

	result, err := NewClient(nil).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Test</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestGet_InvalidURL(t *testing.T) {
	for _, u := range []string{"not-a-valid-url", "ftp://example.com/file", "mailto:hr@example.com"} {
		_, err := NewClient(nil).Get(context.Background(), u)
		require.Error(t, err, u)

		var fetchErr *Error
		assert.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestGet_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := NewClient(nil).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.NotNil(t, result) // Result is returned even on error
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "404")
}

func TestGet_RetryableStatuses(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := NewClient(nil).Get(context.Background(), server.URL)
		server.Close()
		require.Error(t, err)
		assert.True(t, IsRetryable(err), code)
	}
}

func TestGet_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	_, err := NewClient(&Options{Timeout: 20 * time.Millisecond}).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP request failed")
}

func TestGet_OversizedBodyIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer server.Close()

	result, err := NewClient(&Options{MaxBodyBytes: 100}).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Nil(t, result)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Message, "exceeds 100 bytes")
	assert.False(t, IsRetryable(err))
}

func TestGet_BodyAtLimitIsKept(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer server.Close()

	result, err := NewClient(&Options{MaxBodyBytes: 100}).Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, result.HTML, 100)
}

func TestRetry_StopsAfterPolicy(t *testing.T) {
	var calls int32
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		func() error {
			atomic.AddInt32(&calls, 1)
			return &Error{URL: "u", Message: "busy", Retryable: true}
		}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetry_PermanentErrorIsNotRetried(t *testing.T) {
	var calls int32
	sentinel := errors.New("bad request")
	err := Retry(context.Background(), DefaultRetryPolicy(), func() error {
		atomic.AddInt32(&calls, 1)
		return sentinel
	}, nil)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetry_SucceedsAfterTransientFailure(t *testing.T) {
	var calls int32
	var notified int32
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond},
		func() error {
			if atomic.AddInt32(&calls, 1) < 2 {
				return &Error{Message: "flaky", Retryable: true}
			}
			return nil
		}, func(error, time.Duration) { atomic.AddInt32(&notified, 1) })
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
}

func TestExtractMainText_WithMainElement(t *testing.T) {
	html := `
	<html>
		<body>
			<nav>Navigation</nav>
			<main>
				<h1>Main Content</h1>
				<p>This is the important text.</p>
			</main>
			<footer>Footer</footer>
		</body>
	</html>`

	text, err := ExtractMainText(html, DefaultTextSelectors())
	require.NoError(t, err)
	assert.Contains(t, text, "Main Content")
	assert.Contains(t, text, "important text")
	assert.NotContains(t, text, "Navigation")
	assert.NotContains(t, text, "Footer")
}

func TestExtractMainText_FallbackToBody(t *testing.T) {
	text, err := ExtractMainText(`<html><body><div>Only body text</div></body></html>`, DefaultTextSelectors())
	require.NoError(t, err)
	assert.Equal(t, "Only body text", text)
}

func TestVisibleText_KeepsFooter(t *testing.T) {
	html := `<html><head><title>Acme Ltd</title><script>var x = "hidden";</script></head>
	<body><main><p>We build widgets.</p></main>
	<footer><p>Acme Ltd is registered in England and Wales.</p><p>Company No. 12345678</p></footer></body></html>`

	text, err := VisibleText(html)
	require.NoError(t, err)
	assert.Contains(t, text, "Acme Ltd")
	assert.Contains(t, text, "Company No. 12345678")
	assert.NotContains(t, text, "hidden")
	assert.NotContains(t, text, "Wales.Company", "block elements must not run together")
}

func TestShouldUseBrowser(t *testing.T) {
	assert.True(t, ShouldUseBrowser("  tiny  "))
	assert.False(t, ShouldUseBrowser(string(make([]byte, MinContentLength+1))))
}
