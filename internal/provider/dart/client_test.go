package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reachlab/reach-data/internal/config"
	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
)

func testConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:       baseURL,
		APIKey:        "test-key",
		Quota:         1000,
		QuotaInterval: time.Second,
		Timeout:       5 * time.Second,
		MaxRetries:    1,
		RetryBackoff:  time.Millisecond,
	}
}

// corpCodeZip builds the zipped corp-code XML body the way DART serves it.
func corpCodeZip(t *testing.T) []byte {
	t.Helper()

	xmlBody := `<?xml version="1.0" encoding="UTF-8"?>
<result>
  <list>
    <corp_code>00126380</corp_code>
    <corp_name>Samsung Electronics</corp_name>
    <stock_code>005930</stock_code>
  </list>
  <list>
    <corp_code>00164742</corp_code>
    <corp_name>SK hynix</corp_name>
    <stock_code> 000660</stock_code>
  </list>
  <list>
    <corp_code>99999999</corp_code>
    <corp_name>Unlisted Holdings</corp_name>
    <stock_code> </stock_code>
  </list>
</result>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("CORPCODE.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := f.Write([]byte(xmlBody)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func statementBody(status string) map[string]any {
	if status != "000" {
		return map[string]any{"status": status, "message": "error"}
	}
	return map[string]any{
		"status":  "000",
		"message": "ok",
		"list": []map[string]any{
			{"sj_div": "IS", "account_id": "ifrs-full_Revenue", "thstrm_amount": "258,935,494,000,000", "currency": "KRW"},
			{"sj_div": "IS", "account_id": "dart_OperatingIncomeLoss", "thstrm_amount": "6,566,976,000,000", "currency": "KRW"},
			{"sj_div": "IS", "account_id": "ifrs-full_ProfitLoss", "thstrm_amount": "15,487,100,000,000", "currency": "KRW"},
			{"sj_div": "BS", "account_id": "ifrs-full_Assets", "thstrm_amount": "455,905,980,000,000", "currency": "KRW"},
			{"sj_div": "BS", "account_id": "ifrs-full_Liabilities", "thstrm_amount": "92,228,115,000,000", "currency": "KRW"},
			{"sj_div": "BS", "account_id": "ifrs-full_Equity", "thstrm_amount": "363,677,865,000,000", "currency": "KRW"},
			{"sj_div": "CF", "account_id": "ifrs-full_CashFlowsFromUsedInOperatingActivities", "thstrm_amount": "44,137,399,000,000", "currency": "KRW"},
			{"sj_div": "BS", "account_id": "ifrs-full_SomethingElse", "thstrm_amount": "1", "currency": "KRW"},
			{"sj_div": "IS", "account_id": "ifrs-full_Revenue", "thstrm_amount": "-", "currency": "KRW"},
		},
	}
}

// newTestServer serves both the corp-code archive and the statement endpoint,
// counting corp-code downloads.
func newTestServer(t *testing.T, corpCodeCalls *atomic.Int32, status string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/corpCode.xml":
			corpCodeCalls.Add(1)
			if got := r.URL.Query().Get("crtfc_key"); got != "test-key" {
				t.Errorf("crtfc_key = %s, want test-key", got)
			}
			w.Write(corpCodeZip(t))
		case "/api/fnlttSinglAcntAll.json":
			q := r.URL.Query()
			if got := q.Get("fs_div"); got != "CFS" {
				t.Errorf("fs_div = %s, want CFS", got)
			}
			json.NewEncoder(w).Encode(statementBody(status))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClient_FetchStatement(t *testing.T) {
	var corpCodeCalls atomic.Int32
	server := newTestServer(t, &corpCodeCalls, "000")
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	period := model.FiscalPeriod{Year: 2023, Quarter: 0}
	stmt, err := c.FetchStatement(context.Background(), "005930", period)
	if err != nil {
		t.Fatalf("FetchStatement failed: %v", err)
	}

	if stmt.Ticker != "005930" || stmt.Currency != "KRW" {
		t.Errorf("ticker/currency = %s/%s", stmt.Ticker, stmt.Currency)
	}
	if stmt.Revenue == nil || *stmt.Revenue != 258935494000000 {
		t.Errorf("Revenue = %v, want 258935494000000", stmt.Revenue)
	}
	if stmt.NetIncome == nil || *stmt.NetIncome != 15487100000000 {
		t.Errorf("NetIncome = %v", stmt.NetIncome)
	}
	if stmt.TotalEquity == nil || *stmt.TotalEquity != 363677865000000 {
		t.Errorf("TotalEquity = %v", stmt.TotalEquity)
	}
	if stmt.OperatingCashFlow == nil || *stmt.OperatingCashFlow != 44137399000000 {
		t.Errorf("OperatingCashFlow = %v", stmt.OperatingCashFlow)
	}
}

func TestClient_CorpCodeCache(t *testing.T) {
	var corpCodeCalls atomic.Int32
	server := newTestServer(t, &corpCodeCalls, "000")
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	period := model.FiscalPeriod{Year: 2023, Quarter: 1}
	for _, ticker := range []string{"005930", "000660", "005930"} {
		if _, err := c.FetchStatement(context.Background(), ticker, period); err != nil {
			t.Fatalf("FetchStatement(%s) failed: %v", ticker, err)
		}
	}

	// The archive is downloaded once, then served from the cache. The
	// whitespace-padded stock code is trimmed before indexing.
	if got := corpCodeCalls.Load(); got != 1 {
		t.Errorf("corp-code downloads = %d, want 1", got)
	}
}

func TestClient_UnknownTicker(t *testing.T) {
	var corpCodeCalls atomic.Int32
	server := newTestServer(t, &corpCodeCalls, "000")
	defer server.Close()

	c := New(testConfig(server.URL), nil)

	_, err := c.FetchStatement(context.Background(), "999999", model.FiscalPeriod{Year: 2023})
	if err == nil {
		t.Fatal("FetchStatement succeeded, want unknown-ticker error")
	}
	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not *provider.Error", err)
	}
	if pe.Class != provider.ClassPermanent {
		t.Errorf("Class = %v, want permanent", pe.Class)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status     string
		want       provider.Class
		wantNoData bool
	}{
		{"013", provider.ClassPermanent, true},  // no filing for period
		{"010", provider.ClassSystemic, false},  // unregistered key
		{"011", provider.ClassSystemic, false},  // suspended key
		{"020", provider.ClassSystemic, false},  // quota exceeded
		{"800", provider.ClassPermanent, false}, // anything else
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			var corpCodeCalls atomic.Int32
			server := newTestServer(t, &corpCodeCalls, tt.status)
			defer server.Close()

			c := New(testConfig(server.URL), nil)

			_, err := c.FetchStatement(context.Background(), "005930", model.FiscalPeriod{Year: 2023})
			if err == nil {
				t.Fatalf("FetchStatement succeeded, want status %s error", tt.status)
			}
			var pe *provider.Error
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *provider.Error", err)
			}
			if pe.Class != tt.want {
				t.Errorf("Class = %v, want %v", pe.Class, tt.want)
			}
			if got := provider.IsNoData(err); got != tt.wantNoData {
				t.Errorf("IsNoData = %v, want %v", got, tt.wantNoData)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"258,935,494,000,000", 258935494000000, false},
		{"-1,234", -1234, false},
		{"0", 0, false},
		{"-", 0, true},
		{"", 0, true},
		{" 42 ", 42, false},
	}

	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseAmount(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseAmount(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseAmount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
