package bitmart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	creds := Credentials{Key: "key", Secret: "secret", Memo: "memo"}
	return NewClient(srv.URL, creds, time.Second, zerolog.Nop())
}

func TestGetKlinesSortsAscending(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contract/public/kline" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"code":1000,"message":"Ok","data":[
			{"timestamp":120,"close_price":"101.5"},
			{"timestamp":60,"close_price":"100.5"},
			{"timestamp":180,"close_price":"102.5"}
		]}`)
	})

	klines, err := client.GetKlines(context.Background(), "BTCUSDT", 1, time.Unix(0, 0), time.Unix(300, 0))
	if err != nil {
		t.Fatalf("GetKlines returned error: %v", err)
	}
	if len(klines) != 3 {
		t.Fatalf("expected 3 klines, got %d", len(klines))
	}
	for i := 1; i < len(klines); i++ {
		if !klines[i].OpenTime.After(klines[i-1].OpenTime) {
			t.Fatalf("klines not sorted ascending at index %d", i)
		}
	}
	if !klines[0].Close.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("unexpected first close: %s", klines[0].Close)
	}
}

func TestVenueCodeIsNotTransportSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":40012,"message":"insufficient balance"}`)
	})

	_, err := client.PlaceMarketOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Side: SideOpenLong, Size: 1})
	var ve *VenueError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VenueError, got %v", err)
	}
	if ve.Code != 40012 {
		t.Fatalf("expected code 40012, got %d", ve.Code)
	}
}

func TestCancelAllPlanOrdersIdempotent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":40035,"message":"plan order not exists"}`)
	})

	if err := client.CancelAllPlanOrders(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("expected nothing-to-cancel to succeed, got %v", err)
	}
}

func TestCancelAllPlanOrdersPropagatesOtherRejections(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":40001,"message":"signature invalid"}`)
	})

	if err := client.CancelAllPlanOrders(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected rejection to propagate")
	}
}

func TestGetCurrentPositionNone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":1000,"message":"Ok","data":[]}`)
	})

	pos, err := client.GetCurrentPosition(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetCurrentPosition returned error: %v", err)
	}
	if pos != nil {
		t.Fatalf("expected nil position, got %+v", pos)
	}
}

func TestGetCurrentPositionParsesFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":1000,"message":"Ok","data":[
			{"symbol":"BTCUSDT","side":"long","open_avg_price":"41250.5","current_amount":"2"}
		]}`)
	})

	pos, err := client.GetCurrentPosition(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetCurrentPosition returned error: %v", err)
	}
	if pos == nil {
		t.Fatalf("expected position")
	}
	if pos.Side != "long" || pos.Size != 2 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if !pos.OpenAvgPrice.Equal(decimal.RequireFromString("41250.5")) {
		t.Fatalf("unexpected open price %s", pos.OpenAvgPrice)
	}
}

func TestPlaceMarketOrderSignsRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-BM-KEY") == "" || r.Header.Get("X-BM-SIGN") == "" || r.Header.Get("X-BM-TIMESTAMP") == "" {
			t.Fatalf("expected signed request headers")
		}
		fmt.Fprint(w, `{"code":1000,"message":"Ok","data":{"order_id":987654}}`)
	})

	orderID, err := client.PlaceMarketOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Side: SideOpenLong, Size: 1, MarginMode: 1, OpenType: "isolated"})
	if err != nil {
		t.Fatalf("PlaceMarketOrder returned error: %v", err)
	}
	if orderID != "987654" {
		t.Fatalf("unexpected order id %s", orderID)
	}
}

func TestGetRealizedPnLHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "2" {
			t.Fatalf("expected type=2 query, got %q", got)
		}
		fmt.Fprint(w, `{"code":1000,"message":"Ok","data":[
			{"time":1700000300,"realised_pnl":"5.25","fee":"-0.12","close_avg_price":"41900"},
			{"time":1700000000,"realised_pnl":"-2.00","fee":"-0.10","close_avg_price":"41500"}
		]}`)
	})

	records, err := client.GetRealizedPnLHistory(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetRealizedPnLHistory returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RealizedPnL != "5.25" || records[0].Fee != "-0.12" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
}
