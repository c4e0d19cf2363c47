package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Procus/internal/logger"
)

func TestSendPostsPayloadWithAuth(t *testing.T) {
	var gotAuth, gotContentType string
	var gotPayload sendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Options{URL: srv.URL, Token: "t0ken"}, logger.NewNop())
	err := client.Send(context.Background(), "+4512345678", "Velkommen")
	require.NoError(t, err)

	assert.Equal(t, "Basic t0ken", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, sendPayload{To: "+4512345678", Message: "Velkommen"}, gotPayload)
}

func TestSendRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no credit", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewClient(Options{URL: srv.URL, Token: "t"}, logger.NewNop())
	err := client.Send(context.Background(), "+4512345678", "hej")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Options{URL: srv.URL, Token: "t", MaxFailures: 2, Timeout: time.Second}, logger.NewNop())
	for i := 0; i < 2; i++ {
		require.Error(t, client.Send(context.Background(), "+45", "x"))
	}
	require.EqualValues(t, 2, hits.Load())

	// Breaker is open now; the gateway must not be hit again.
	err := client.Send(context.Background(), "+45", "x")
	require.Error(t, err)
	assert.EqualValues(t, 2, hits.Load(), "open breaker short-circuits the request")
}
