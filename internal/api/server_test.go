package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeCacheQuery struct {
	cached map[string]bool
	err    error
}

func (f fakeCacheQuery) PincodeCached(_ context.Context, pincode string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.cached[pincode], nil
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(fakePinger{}, fakeCacheQuery{}, nil)
	rec := doRequest(t, srv, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyzReflectsStoreHealth(t *testing.T) {
	t.Parallel()

	srv := NewServer(fakePinger{}, fakeCacheQuery{}, nil)
	rec := doRequest(t, srv, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	srv = NewServer(fakePinger{err: errors.New("pool closed")}, fakeCacheQuery{}, nil)
	rec = doRequest(t, srv, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPincodeCached(t *testing.T) {
	t.Parallel()

	srv := NewServer(fakePinger{}, fakeCacheQuery{cached: map[string]bool{"411001": true}}, nil)

	rec := doRequest(t, srv, "/v1/pincodes/411001/cached")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "411001", body["pincode"])
	require.Equal(t, true, body["cached"])

	rec = doRequest(t, srv, "/v1/pincodes/560001/cached")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["cached"])
}

func TestPincodeCachedRejectsMalformedPincode(t *testing.T) {
	t.Parallel()

	srv := NewServer(fakePinger{}, fakeCacheQuery{}, nil)

	for _, pincode := range []string{"41100", "4110011", "41100a", "pune"} {
		rec := doRequest(t, srv, "/v1/pincodes/"+pincode+"/cached")
		require.Equal(t, http.StatusBadRequest, rec.Code, "pincode %q", pincode)
	}
}

func TestPincodeCachedQueryFailure(t *testing.T) {
	t.Parallel()

	srv := NewServer(fakePinger{}, fakeCacheQuery{err: errors.New("pool closed")}, nil)
	rec := doRequest(t, srv, "/v1/pincodes/411001/cached")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpointServes(t *testing.T) {
	t.Parallel()

	srv := NewServer(fakePinger{}, fakeCacheQuery{}, nil)
	rec := doRequest(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}
