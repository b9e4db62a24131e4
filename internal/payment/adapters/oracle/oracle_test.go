package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/uplink/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVerifySendsExpectationAndReadsVerdict(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(verifyResponse{Verified: got.Amount == 10000})
	}))
	defer srv.Close()

	v := New(srv.URL, time.Second, zap.NewNop())
	ok, err := v.Verify(context.Background(), "0xabc", "0xplatform", 10000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0xabc", got.Reference)
	assert.Equal(t, "0xplatform", got.Recipient)

	ok, err = v.Verify(context.Background(), "0xdef", "0xplatform", 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyClientErrorIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ok, err := New(srv.URL, time.Second, nil).Verify(context.Background(), "0xabc", "", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Verify(context.Background(), "0xabc", "", 1)
	assert.ErrorIs(t, err, paymentdomain.ErrOracleUnavailable)
}

func TestVerifyGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Verify(context.Background(), "0xabc", "", 1)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidResponse)
}
