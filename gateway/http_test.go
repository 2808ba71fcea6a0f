package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402pay/types"
)

const paymentRequiredBody = `{
  "x402Version": 1,
  "orderId": "ord_1",
  "accepts": [{
    "scheme": "exact",
    "network": "devnet",
    "asset": "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
    "symbol": "USDC",
    "decimals": 6,
    "payTo": "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
    "resource": "/api/resource/r1",
    "nonce": "n1",
    "expiresAt": 0
  }]
}`

func newServer(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL, WithHeaders(map[string]string{"X-Api-Key": "k"}))
	require.NoError(t, err)
	return c
}

func TestRequestPaymentRequired(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/resource/r1", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(paymentRequiredBody))
	})

	res, err := c.RequestPayment(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, res.Paid())
	require.NotNil(t, res.Required)
	assert.Equal(t, "ord_1", res.Required.OrderID)
	require.Len(t, res.Required.Accepts, 1)
	opt := res.Required.Accepts[0]
	require.NotNil(t, opt.Decimals)
	assert.Equal(t, uint8(6), *opt.Decimals)
	assert.Equal(t, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", opt.PayTo)
}

func TestRequestPaymentAlreadyPaid(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":"secret"}`))
	})

	res, err := c.RequestPayment(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, res.Paid())
	assert.Nil(t, res.Required)
	assert.JSONEq(t, `{"content":"secret"}`, string(res.Data))
}

func TestRequestPaymentUnexpectedStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.RequestPayment(context.Background(), "r1")
	var xe *types.X402Error
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, types.ErrNetworkError, xe.Code)
}

func TestConfirmPaymentSendsProofHeader(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/resource/r1/confirm", r.URL.Path)
		assert.Equal(t, "PROOF", r.Header.Get(types.PaymentHeader))
		_, _ = w.Write([]byte(`{"code":200,"status":"success","message":"paid"}`))
	})

	res, err := c.ConfirmPayment(context.Background(), "r1", "PROOF")
	require.NoError(t, err)
	assert.True(t, res.Settled())
	assert.False(t, res.Pending())
}

func TestConfirmPaymentWaiting(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"code":202,"status":"pending","message":"Waiting for settlement"}`))
	})

	res, err := c.ConfirmPayment(context.Background(), "r1", "PROOF")
	require.NoError(t, err)
	assert.True(t, res.Pending())
	assert.False(t, res.Settled())
}

func TestConfirmPaymentRejectedKeepsMessage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("order expired"))
	})

	res, err := c.ConfirmPayment(context.Background(), "r1", "PROOF")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "order expired", res.Message)
	assert.False(t, res.Settled())
}

func TestCustomPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/items/a%2Fb", r.URL.EscapedPath())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL+"/", WithPaths("/v2/items/{resourceId}", ""))
	require.NoError(t, err)
	_, err = c.RequestPayment(context.Background(), "a/b")
	require.NoError(t, err)
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("not a url")
	assert.Error(t, err)
}
