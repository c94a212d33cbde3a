package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

func TestPolygon_QuoteUsesPrevAggregateAndKey(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("apiKey")
		_, _ = w.Write([]byte(`{"results":[{"c":101.5}]}`))
	}))
	defer srv.Close()

	p := NewPolygon(srv.URL, "pk", srv.Client())
	data, err := p.Fetch(context.Background(), datahub.MethodQuote, map[string]string{"symbol": "ACME"})
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if gotPath != "/v2/aggs/ticker/ACME/prev" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotKey != "pk" {
		t.Fatalf("apiKey=%q, want pk", gotKey)
	}
	if !strings.Contains(string(data), "101.5") {
		t.Fatalf("unexpected body %s", data)
	}
}

func TestClient_StatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
		{http.StatusServiceUnavailable, false},
		{http.StatusNotFound, true},
		{http.StatusUnauthorized, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		f := NewFMP(srv.URL, "k", srv.Client())
		_, err := f.Fetch(context.Background(), datahub.MethodProfile, map[string]string{"symbol": "ACME"})
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if got := datahub.IsPermanent(err); got != tc.permanent {
			t.Fatalf("status %d: permanent=%v, want %v", tc.status, got, tc.permanent)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.status {
			t.Fatalf("status %d: err=%v, want APIError", tc.status, err)
		}
	}
}

func TestFMP_UnsupportedMethodIsPermanent(t *testing.T) {
	f := NewFMP("http://127.0.0.1:0", "k", nil)
	_, err := f.Fetch(context.Background(), datahub.MethodFilings, map[string]string{"symbol": "ACME"})
	if !errors.Is(err, ErrUnsupportedMethod) || !datahub.IsPermanent(err) {
		t.Fatalf("err=%v, want permanent ErrUnsupportedMethod", err)
	}
}

func TestFMP_ScreenerPassesFilters(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock-screener" {
			t.Errorf("path=%q", r.URL.Path)
		}
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := NewFMP(srv.URL, "k", srv.Client())
	if _, err := f.Fetch(context.Background(), datahub.MethodScreener, map[string]string{"marketCapMoreThan": "1000000000"}); err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if !strings.Contains(query, "marketCapMoreThan=1000000000") || !strings.Contains(query, "apikey=k") {
		t.Fatalf("query=%q", query)
	}
}

func TestFRED_ObservationsQuery(t *testing.T) {
	var q map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query()
		_, _ = w.Write([]byte(`{"observations":[]}`))
	}))
	defer srv.Close()

	f := NewFRED(srv.URL, "fk", srv.Client())
	if _, err := f.Fetch(context.Background(), datahub.MethodMacro, map[string]string{"series_id": "DGS10"}); err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if q["series_id"][0] != "DGS10" || q["file_type"][0] != "json" || q["api_key"][0] != "fk" {
		t.Fatalf("query=%v", q)
	}
}

func TestSEC_LoadsTickerMapOnce(t *testing.T) {
	var mapLoads atomic.Int32
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/files/company_tickers.json":
			mapLoads.Add(1)
			_, _ = w.Write([]byte(`{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."}}`))
		case "/submissions/CIK0000320193.json":
			_, _ = w.Write([]byte(`{"cik":"320193","filings":{}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewSEC(srv.URL, srv.URL, "arc research ops@example.com", srv.Client())
	for i := 0; i < 2; i++ {
		if _, err := s.Fetch(context.Background(), datahub.MethodFilings, map[string]string{"symbol": "aapl"}); err != nil {
			t.Fatalf("Fetch() err=%v", err)
		}
	}
	if mapLoads.Load() != 1 {
		t.Fatalf("ticker map loads=%d, want 1", mapLoads.Load())
	}
	if agent != "arc research ops@example.com" {
		t.Fatalf("User-Agent=%q", agent)
	}

	_, err := s.Fetch(context.Background(), datahub.MethodFilings, map[string]string{"symbol": "ZZZZ"})
	if err == nil || !datahub.IsPermanent(err) {
		t.Fatalf("unknown ticker err=%v, want permanent", err)
	}
}

func TestReddit_SearchesSubreddit(t *testing.T) {
	var path, q string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		q = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`{"data":{"children":[]}}`))
	}))
	defer srv.Close()

	r := NewReddit(srv.URL, "", "arc-test", srv.Client())
	if _, err := r.Fetch(context.Background(), datahub.MethodSocial, map[string]string{"symbol": "ACME"}); err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if path != "/r/wallstreetbets/search.json" || q != "ACME" {
		t.Fatalf("path=%q q=%q", path, q)
	}
}

func TestBuild_SkipsUnkeyedProviders(t *testing.T) {
	got := Build(Config{FMPAPIKey: "k", RedditUserAgent: "ua", RequestTimeout: 1})
	names := make([]string, 0, len(got))
	for _, p := range got {
		names = append(names, p.Name())
	}
	if strings.Join(names, ",") != "fmp,reddit" {
		t.Fatalf("providers=%v, want [fmp reddit]", names)
	}
}
