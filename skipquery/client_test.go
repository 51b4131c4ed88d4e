package skipquery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zeebo/assert"
)

func fastFailover() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          0,
		RetryDelay:          time.Millisecond,
		HealthCheckInterval: time.Hour,
		Timeout:             5 * time.Second,
	}
}

func routeRequest() RouteRequest {
	return RouteRequest{
		AmountIn:           "1000000",
		SourceAssetDenom:   "ibc/usdc",
		SourceAssetChainID: "neutron-1",
		DestAssetDenom:     "untrn",
		DestAssetChainID:   "neutron-1",
		SwapVenues:         []VenueRef{{Name: "neutron-duality", ChainID: "neutron-1"}},
	}
}

func TestRouteValidation(t *testing.T) {
	c := NewClient("http://localhost:1")
	defer c.Close()

	// Neither amount set.
	req := routeRequest()
	req.AmountIn = ""
	_, err := c.Route(context.Background(), req)
	assert.Error(t, err)

	// Both amounts set.
	req = routeRequest()
	req.AmountOut = "5"
	_, err = c.Route(context.Background(), req)
	assert.Error(t, err)

	// Missing denoms.
	req = routeRequest()
	req.DestAssetDenom = ""
	_, err = c.Route(context.Background(), req)
	assert.Error(t, err)
}

func TestRoutePostsRequestBody(t *testing.T) {
	var got RouteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/fungible/route", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"amount_out": "970000"}`))
	}))
	defer srv.Close()

	c := NewClientWithFailover(srv.URL, nil, fastFailover())
	defer c.Close()

	raw, err := c.Route(context.Background(), routeRequest())
	assert.NoError(t, err)
	assert.Equal(t, "1000000", got.AmountIn)
	assert.Equal(t, "neutron-duality", got.SwapVenues[0].Name)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "970000", resp["amount_out"])
}

func TestRouteSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"unknown denom"}`))
	}))
	defer srv.Close()

	c := NewClientWithFailover(srv.URL, nil, fastFailover())
	defer c.Close()

	_, err := c.Route(context.Background(), routeRequest())
	assert.Error(t, err)
}

func TestRouteFailsOverToBackup(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health probe and route both served here.
		if r.URL.Path == "/v2/info/chains" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`{"amount_out": "970000"}`))
	}))
	defer backup.Close()

	c := NewClientWithFailover(primary.URL, []string{backup.URL}, fastFailover())
	defer c.Close()

	raw, err := c.Route(context.Background(), routeRequest())
	assert.NoError(t, err)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "970000", resp["amount_out"])
}

func TestTokenPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/fungible/price", r.URL.Path)
		assert.Equal(t, "untrn", r.URL.Query().Get("denom"))
		assert.Equal(t, "neutron-1", r.URL.Query().Get("chain_id"))
		_, _ = w.Write([]byte(`{"usd_price": "0.42"}`))
	}))
	defer srv.Close()

	c := NewClientWithFailover(srv.URL, nil, fastFailover())
	defer c.Close()

	price, err := c.TokenPrice(context.Background(), "neutron-1", "untrn")
	assert.NoError(t, err)
	assert.Equal(t, "0.42", price.String())

	_, err = c.TokenPrice(context.Background(), "neutron-1", "")
	assert.Error(t, err)
}

func TestTokenPriceRejectsNonPositive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"usd_price": "0"}`))
	}))
	defer srv.Close()

	c := NewClientWithFailover(srv.URL, nil, fastFailover())
	defer c.Close()

	_, err := c.TokenPrice(context.Background(), "neutron-1", "untrn")
	assert.Error(t, err)
}

func TestRouteContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastFailover()
	cfg.MaxRetries = 5
	cfg.RetryDelay = time.Hour // retries would hang without ctx handling
	c := NewClientWithFailover(srv.URL, nil, cfg)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Route(ctx, routeRequest())
	assert.Error(t, err)
}
