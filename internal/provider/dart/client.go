// Package dart implements the DART (Korean financial supervisory filing
// system) adapter. It resolves tickers to DART corp codes via the zipped
// corp-code table and fetches financial statement line items per fiscal
// period.
package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/reachlab/reach-data/internal/config"
	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
)

// Electronic filing goes back to 1999.
var defaultEarliest = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

// reportCodes maps fiscal quarters to DART report codes. Quarter 0 is the
// annual business report; Q2 is the half-year report.
var reportCodes = map[int]string{
	0: "11011",
	1: "11013",
	2: "11012",
	3: "11014",
}

// Client is the DART adapter. The corp-code table is fetched once and cached
// for the process lifetime; it changes rarely and the download is a multi-MB
// ZIP that counts against quota.
type Client struct {
	rest   *provider.RESTClient
	apiKey string
	logger *slog.Logger

	mu        sync.Mutex
	corpCodes map[string]string // ticker -> corp_code, nil until loaded
}

// New creates a DART adapter from provider config.
func New(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rest:   provider.NewRESTClient("dart", cfg, defaultEarliest, logger),
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return c.rest.Name() }

// Quota returns the configured request budget.
func (c *Client) Quota() (int, time.Duration) { return c.rest.Quota() }

// EarliestDate is the oldest fiscal year with electronic filings.
func (c *Client) EarliestDate() time.Time { return c.rest.EarliestDate() }

// statementResponse is the fnlttSinglAcntAll envelope. DART signals
// application errors in the body with HTTP 200.
type statementResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	List    []accountEntry `json:"list"`
}

type accountEntry struct {
	SjDiv     string `json:"sj_div"`     // IS, BS, CF, CIS
	AccountID string `json:"account_id"` // IFRS taxonomy id
	Amount    string `json:"thstrm_amount"`
	Currency  string `json:"currency"`
}

// FetchStatement fetches one fiscal period's consolidated statement and maps
// the IFRS accounts onto the statement line items. Returns a permanent error
// when the filing does not exist; key and quota failures are systemic.
func (c *Client) FetchStatement(ctx context.Context, ticker string, period model.FiscalPeriod) (*model.FinancialStatement, error) {
	corpCode, err := c.corpCode(ctx, ticker)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("crtfc_key", c.apiKey)
	query.Set("corp_code", corpCode)
	query.Set("bsns_year", strconv.Itoa(period.Year))
	query.Set("reprt_code", reportCodes[period.Quarter])
	query.Set("fs_div", "CFS") // consolidated

	var resp statementResponse
	if err := c.rest.Get(ctx, "/api/fnlttSinglAcntAll.json", query, &resp); err != nil {
		return nil, fmt.Errorf("dart statement %s %s: %w", ticker, period, err)
	}

	if err := c.checkStatus(resp.Status, resp.Message); err != nil {
		return nil, fmt.Errorf("dart statement %s %s: %w", ticker, period, err)
	}

	stmt := &model.FinancialStatement{
		Ticker:   ticker,
		Period:   period,
		Currency: "KRW",
	}
	for _, entry := range resp.List {
		if entry.Currency != "" {
			stmt.Currency = entry.Currency
		}
		amount, err := parseAmount(entry.Amount)
		if err != nil {
			continue
		}
		assignAccount(stmt, entry.SjDiv, entry.AccountID, amount)
	}

	return stmt, nil
}

// assignAccount routes one account row onto the statement. Accounts are keyed
// by statement division plus IFRS taxonomy id; unrecognized rows are ignored.
func assignAccount(stmt *model.FinancialStatement, sjDiv, accountID string, amount float64) {
	v := amount
	switch sjDiv {
	case "IS", "CIS":
		switch accountID {
		case "ifrs-full_Revenue":
			stmt.Revenue = &v
		case "dart_OperatingIncomeLoss":
			stmt.OperatingIncome = &v
		case "ifrs-full_ProfitLoss":
			stmt.NetIncome = &v
		}
	case "BS":
		switch accountID {
		case "ifrs-full_Assets":
			stmt.TotalAssets = &v
		case "ifrs-full_Liabilities":
			stmt.TotalLiabilities = &v
		case "ifrs-full_Equity":
			stmt.TotalEquity = &v
		}
	case "CF":
		if accountID == "ifrs-full_CashFlowsFromUsedInOperatingActivities" {
			stmt.OperatingCashFlow = &v
		}
	}
}

// parseAmount parses a DART amount string. Amounts arrive with thousands
// separators and may be empty or "-" when the filing omits the line.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0, fmt.Errorf("empty amount")
	}
	return strconv.ParseFloat(s, 64)
}

// checkStatus maps DART application status codes to the error taxonomy.
// 013 means no filing for the requested period. Key and quota problems
// (010, 011, 020) poison every subsequent call, so they are systemic.
func (c *Client) checkStatus(status, message string) error {
	switch status {
	case "000":
		return nil
	case "013":
		return &provider.Error{
			Provider: c.Name(),
			Class:    provider.ClassPermanent,
			NoData:   true,
			Message:  "no filing for period",
		}
	case "010", "011", "020":
		return &provider.Error{
			Provider: c.Name(),
			Class:    provider.ClassSystemic,
			Message:  fmt.Sprintf("status %s: %s", status, message),
		}
	default:
		return &provider.Error{
			Provider: c.Name(),
			Class:    provider.ClassPermanent,
			Message:  fmt.Sprintf("status %s: %s", status, message),
		}
	}
}

// corpCode resolves a ticker to its DART corp code, loading the corp-code
// table on first use.
func (c *Client) corpCode(ctx context.Context, ticker string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.corpCodes == nil {
		codes, err := c.loadCorpCodes(ctx)
		if err != nil {
			return "", err
		}
		c.corpCodes = codes
		c.logger.Info("loaded corp-code table", "entries", len(codes))
	}

	code, ok := c.corpCodes[ticker]
	if !ok {
		return "", &provider.Error{
			Provider: c.Name(),
			Class:    provider.ClassPermanent,
			Message:  fmt.Sprintf("no corp code for ticker %s", ticker),
		}
	}
	return code, nil
}

type corpCodeList struct {
	Items []corpCodeItem `xml:"list"`
}

type corpCodeItem struct {
	CorpCode  string `xml:"corp_code"`
	StockCode string `xml:"stock_code"`
}

// loadCorpCodes downloads the zipped corp-code XML and indexes listed
// companies by stock code. Unlisted entities have a blank stock code and
// are skipped.
func (c *Client) loadCorpCodes(ctx context.Context) (map[string]string, error) {
	query := url.Values{}
	query.Set("crtfc_key", c.apiKey)

	raw, err := c.rest.GetRaw(ctx, "/api/corpCode.xml", query)
	if err != nil {
		return nil, fmt.Errorf("dart corp codes: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		// An API error for this endpoint arrives as an XML body, not a ZIP.
		return nil, &provider.Error{
			Provider: c.Name(),
			Class:    provider.ClassSystemic,
			Message:  "corp-code response is not a zip archive",
		}
	}
	if len(reader.File) == 0 {
		return nil, fmt.Errorf("dart corp codes: empty archive")
	}

	f, err := reader.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("dart corp codes: open archive entry: %w", err)
	}
	defer f.Close()

	xmlBody, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("dart corp codes: read archive entry: %w", err)
	}

	var list corpCodeList
	if err := xml.Unmarshal(xmlBody, &list); err != nil {
		return nil, fmt.Errorf("dart corp codes: unmarshal: %w", err)
	}

	codes := make(map[string]string, len(list.Items))
	for _, item := range list.Items {
		stock := strings.TrimSpace(item.StockCode)
		if stock == "" {
			continue
		}
		codes[stock] = item.CorpCode
	}

	return codes, nil
}
