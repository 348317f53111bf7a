package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
)

type recordingAuth struct {
	paths []string
}

func (r *recordingAuth) AddAuthHeaders(req *http.Request, method, path, body string) error {
	r.paths = append(r.paths, method+" "+path)
	req.Header.Set("POLY_API_KEY", "key")
	return nil
}

func TestClient_PlaceOrder(t *testing.T) {
	var got orderPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/order" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("POLY_API_KEY") != "key" {
			t.Errorf("missing auth header")
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.Write([]byte(`{"success":true,"errorMsg":"","orderID":"0xorder1","status":"live"}`))
	}))
	defer srv.Close()

	auth := &recordingAuth{}
	c := NewClient(srv.URL, "owner-key", auth, logrus.New())

	order, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		TokenID: "up-token",
		Side:    models.OrderSideBuy,
		Price:   0.5,
		Size:    10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if order.OrderID != "0xorder1" || order.Status != models.OrderStatusLive {
		t.Errorf("unexpected order %+v", order)
	}
	if got.Order.Price != "0.50" || got.Order.Size != "10" || got.Order.Side != "BUY" || got.Order.TokenID != "up-token" {
		t.Errorf("unexpected payload %+v", got)
	}
	if got.Owner != "owner-key" || got.OrderType != "GTC" {
		t.Errorf("unexpected owner/type %+v", got)
	}
	if len(auth.paths) != 1 || auth.paths[0] != "POST /order" {
		t.Errorf("unexpected signed paths %v", auth.paths)
	}
}

func TestClient_PlaceOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errorMsg":"not enough balance / allowance"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", nil, logrus.New())
	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{TokenID: "t", Side: models.OrderSideBuy, Price: 0.5, Size: 1})
	if err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized/Invalid api key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", nil, logrus.New())
	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{TokenID: "t", Side: models.OrderSideSell, Price: 0.5, Size: 1})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("unexpected status %d", apiErr.StatusCode)
	}
}

func TestClient_CollateralBalance(t *testing.T) {
	auth := &recordingAuth{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("asset_type") != "COLLATERAL" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"balance":"25500000","allowance":"0"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", auth, logrus.New())
	bal, err := c.CollateralBalance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if bal != 25.5 {
		t.Errorf("expected 25.5, got %v", bal)
	}
	if auth.paths[0] != "GET /balance-allowance" {
		t.Errorf("expected query stripped from signed path, got %s", auth.paths[0])
	}
}
