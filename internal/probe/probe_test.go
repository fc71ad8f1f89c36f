package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAcceptsHealthyStorefront(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>storefront shell</body></html>"))
	}))
	defer ts.Close()

	p := New(Config{Timeout: 5 * time.Second})
	require.NoError(t, p.Check(context.Background(), ts.URL))
}

func TestCheckRejectsServerErrors(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := New(Config{Timeout: 5 * time.Second})
	err := p.Check(context.Background(), ts.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestCheckRejectsUnreachableHost(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	p := New(Config{Timeout: time.Second})
	require.Error(t, p.Check(context.Background(), url))
}

func TestCheckHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{Timeout: time.Second})
	require.ErrorIs(t, p.Check(ctx, "http://127.0.0.1:1"), context.Canceled)
}

func TestCheckSendsConfiguredUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	p := New(Config{UserAgent: "alertbot-probe/1.0", Timeout: 5 * time.Second})
	require.NoError(t, p.Check(context.Background(), ts.URL))
	require.Equal(t, "alertbot-probe/1.0", gotUA)
}
