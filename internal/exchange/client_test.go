package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := NewClientForURL(server.URL, "trader", "secret", WithTimeout(2*time.Second))
	return client, server.Close
}

func TestClientCaseUsesBasicAuth(t *testing.T) {
	client, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "trader" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/case" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"name":"LT3","period":1,"tick":42,"ticks_per_period":300,"status":"ACTIVE"}`))
	})
	defer done()

	session, err := client.Case(context.Background())
	if err != nil {
		t.Fatalf("Case returned error: %v", err)
	}
	if session.Tick != 42 || session.Period != 1 || session.Status != CaseActive {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestClientSecuritiesDecodesFloatPositions(t *testing.T) {
	client, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ticker"); got != "CRZY" {
			t.Errorf("expected ticker filter CRZY, got %q", got)
		}
		_, _ = w.Write([]byte(`[{"ticker":"CRZY","position":-1500.0,"last":10.25,"volume":32000.0}]`))
	})
	defer done()

	sec, err := SecurityFor(context.Background(), client, "CRZY")
	if err != nil {
		t.Fatalf("SecurityFor returned error: %v", err)
	}
	if sec.Position != -1500 || sec.Volume != 32000 || sec.Last != 10.25 {
		t.Fatalf("unexpected security: %+v", sec)
	}
}

func TestClientSecurityForMissingTicker(t *testing.T) {
	client, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	defer done()

	if _, err := SecurityFor(context.Background(), client, "CRZY"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestClientPostOrderSendsLimitPrice(t *testing.T) {
	client, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("type") != "LIMIT" || q.Get("price") != "9.95" || q.Get("quantity") != "500" || q.Get("action") != "BUY" {
			t.Errorf("unexpected params %v", q)
		}
		_, _ = w.Write([]byte(`{"order_id":7,"ticker":"CRZY","type":"LIMIT","quantity":500,"action":"BUY","price":9.95,"quantity_filled":0,"vwap":null,"status":"OPEN"}`))
	})
	defer done()

	order, err := client.PostOrder(context.Background(), OrderRequest{Ticker: "CRZY", Type: Limit, Quantity: 500, Action: Buy, Price: 9.95})
	if err != nil {
		t.Fatalf("PostOrder returned error: %v", err)
	}
	if order.ID != 7 || order.Status != StatusOpen || order.VWAP != nil {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.Price == nil || *order.Price != 9.95 {
		t.Fatalf("expected limit price echoed back")
	}
}

func TestClientPostMarketOrderOmitsPrice(t *testing.T) {
	client, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("price") {
			t.Errorf("market order must not carry a price")
		}
		_, _ = w.Write([]byte(`{"order_id":8,"ticker":"CRZY","type":"MARKET","quantity":100,"action":"SELL","price":null,"quantity_filled":100,"vwap":10.01,"status":"TRANSACTED"}`))
	})
	defer done()

	order, err := client.PostOrder(context.Background(), OrderRequest{Ticker: "CRZY", Type: Market, Quantity: 100, Action: Sell, Price: 10})
	if err != nil {
		t.Fatalf("PostOrder returned error: %v", err)
	}
	if order.VWAP == nil || *order.VWAP != 10.01 || order.QuantityFilled != 100 {
		t.Fatalf("unexpected fill: %+v", order)
	}
}

func TestClientTendersAndAccept(t *testing.T) {
	client, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/tenders":
			_, _ = w.Write([]byte(`[{"tender_id":11,"period":1,"tick":5,"expires":35,"caption":"block","quantity":1000.0,"action":"SELL","is_fixed_bid":true,"price":10.0,"ticker":"CRZY"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/tenders/11":
			if r.URL.Query().Get("price") != "10" {
				t.Errorf("unexpected accept price %q", r.URL.Query().Get("price"))
			}
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer done()

	tenders, err := client.Tenders(context.Background())
	if err != nil {
		t.Fatalf("Tenders returned error: %v", err)
	}
	if len(tenders) != 1 || tenders[0].ID != 11 || tenders[0].Action != Sell || tenders[0].Quantity != 1000 {
		t.Fatalf("unexpected tenders: %+v", tenders)
	}
	if tenders[0].SignedQuantity() != -1000 {
		t.Fatalf("expected signed quantity -1000, got %d", tenders[0].SignedQuantity())
	}
	res, err := client.AcceptTender(context.Background(), 11, tenders[0].Price)
	if err != nil || !res.Success {
		t.Fatalf("AcceptTender: res=%+v err=%v", res, err)
	}
}

func TestClientErrorsAreClassified(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	client, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "0.5")
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"code":"TOO_MANY_REQUESTS","message":"slow down"}`))
	})
	defer done()

	_, err := client.Tenders(context.Background())
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !IsTransient(err) || gwErr.RetryAfter != 500*time.Millisecond {
		t.Fatalf("expected transient 429 with retry-after, got %+v", gwErr)
	}

	status.Store(http.StatusBadRequest)
	_, err = client.Tenders(context.Background())
	if err == nil || IsTransient(err) {
		t.Fatalf("expected non-transient 400, got %v", err)
	}
}

func TestSideHelpers(t *testing.T) {
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Fatalf("unexpected opposite sides")
	}
	if Buy.Sign() != 1 || Sell.Sign() != -1 {
		t.Fatalf("unexpected side signs")
	}
	if Side("HOLD").Valid() {
		t.Fatalf("HOLD must not be a valid side")
	}
}
