package bitmart

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://api-cloud-v2.bitmart.com"
	defaultTimeout = 20 * time.Second

	codeOK = 1000
)

// Credentials hold the API key triple the venue signs private requests with.
type Credentials struct {
	Key    string
	Secret string
	Memo   string
}

// Configured reports whether real credentials are present. The placeholder
// value shipped in example env files counts as unconfigured.
func (c Credentials) Configured() bool {
	return c.Key != "" && c.Key != "YOUR_API_KEY" && c.Secret != ""
}

// Client talks to the futures REST API. All calls are synchronous and
// bounded by the HTTP client timeout.
type Client struct {
	base  string
	creds Credentials
	http  *http.Client
	log   zerolog.Logger
}

// NewClient builds a connector against baseURL. Zero timeout falls back to
// the default.
func NewClient(baseURL string, creds Credentials, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:  strings.TrimSuffix(baseURL, "/"),
		creds: creds,
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) sign(timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(c.creds.Secret))
	mac.Write([]byte(timestamp + "#" + c.creds.Memo + "#" + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.Configured() {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("X-BM-KEY", c.creds.Key)
		req.Header.Set("X-BM-TIMESTAMP", ts)
		req.Header.Set("X-BM-SIGN", c.sign(ts, string(body)))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %d", op, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if env.Code != codeOK {
		return &VenueError{Op: op, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", op, err)
		}
	}
	return nil
}

// SetLeverage configures leverage and margin type for the symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol, leverage, openType string) error {
	payload := map[string]any{
		"symbol":    symbol,
		"leverage":  leverage,
		"open_type": openType,
	}
	return c.do(ctx, "set leverage", http.MethodPost, "/contract/private/submit-leverage", nil, payload, nil)
}

// CancelAllPlanOrders removes every outstanding conditional order for the
// symbol. The venue rejecting because nothing is outstanding counts as
// success.
func (c *Client) CancelAllPlanOrders(ctx context.Context, symbol string) error {
	payload := map[string]any{"symbol": symbol}
	err := c.do(ctx, "cancel plan orders", http.MethodPost, "/contract/private/cancel-plan-orders", nil, payload, nil)
	var ve *VenueError
	if errors.As(err, &ve) && strings.Contains(ve.Message, "not exists") {
		return nil
	}
	return err
}

type klineWire struct {
	Timestamp  int64  `json:"timestamp"`
	OpenPrice  string `json:"open_price"`
	HighPrice  string `json:"high_price"`
	LowPrice   string `json:"low_price"`
	ClosePrice string `json:"close_price"`
	Volume     string `json:"volume"`
}

// GetKlines fetches candles between start and end at the given step and
// returns them sorted ascending by open time.
func (c *Client) GetKlines(ctx context.Context, symbol string, stepMinutes int, start, end time.Time) ([]Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("step", strconv.Itoa(stepMinutes))
	q.Set("start_time", strconv.FormatInt(start.Unix(), 10))
	q.Set("end_time", strconv.FormatInt(end.Unix(), 10))

	var rows []klineWire
	if err := c.do(ctx, "get klines", http.MethodGet, "/contract/public/kline", q, nil, &rows); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		k, err := row.parse()
		if err != nil {
			return nil, fmt.Errorf("get klines: %w", err)
		}
		klines = append(klines, k)
	}
	sort.Slice(klines, func(i, j int) bool { return klines[i].OpenTime.Before(klines[j].OpenTime) })
	return klines, nil
}

func (w klineWire) parse() (Kline, error) {
	k := Kline{OpenTime: time.Unix(w.Timestamp, 0)}
	for _, field := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{w.OpenPrice, &k.Open},
		{w.HighPrice, &k.High},
		{w.LowPrice, &k.Low},
		{w.ClosePrice, &k.Close},
		{w.Volume, &k.Volume},
	} {
		if field.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return Kline{}, fmt.Errorf("parse candle at %d: %w", w.Timestamp, err)
		}
		*field.dst = d
	}
	return k, nil
}

type positionWire struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	OpenAvgPrice  string `json:"open_avg_price"`
	CurrentAmount string `json:"current_amount"`
}

// GetCurrentPosition returns the live position for the symbol, or nil when
// the venue reports none.
func (c *Client) GetCurrentPosition(ctx context.Context, symbol string) (*Position, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var rows []positionWire
	if err := c.do(ctx, "get position", http.MethodGet, "/contract/private/position", q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	pos := &Position{Symbol: row.Symbol, Side: row.Side}
	if row.OpenAvgPrice != "" {
		price, err := decimal.NewFromString(row.OpenAvgPrice)
		if err != nil {
			return nil, fmt.Errorf("get position: parse open price: %w", err)
		}
		pos.OpenAvgPrice = price
	}
	if row.CurrentAmount != "" {
		size, err := strconv.Atoi(row.CurrentAmount)
		if err != nil {
			return nil, fmt.Errorf("get position: parse size: %w", err)
		}
		pos.Size = size
	}
	return pos, nil
}

// PlaceMarketOrder submits a market order and returns the venue order id.
func (c *Client) PlaceMarketOrder(ctx context.Context, req OrderRequest) (string, error) {
	payload := map[string]any{
		"symbol":          req.Symbol,
		"client_order_id": uuid.NewString(),
		"side":            int(req.Side),
		"type":            "market",
		"size":            req.Size,
	}
	if req.MarginMode != 0 {
		payload["mode"] = req.MarginMode
	}
	if req.OpenType != "" {
		payload["open_type"] = req.OpenType
	}

	var data struct {
		OrderID int64 `json:"order_id"`
	}
	if err := c.do(ctx, "place market order", http.MethodPost, "/contract/private/submit-order", nil, payload, &data); err != nil {
		return "", err
	}
	return strconv.FormatInt(data.OrderID, 10), nil
}

// SubmitPlanOrder registers an exchange-side conditional order that triggers
// at the given price without further engine involvement.
func (c *Client) SubmitPlanOrder(ctx context.Context, symbol string, kind PlanKind, trigger decimal.Decimal) error {
	orderType := "tp"
	if kind == PlanStopLoss {
		orderType = "sl"
	}
	payload := map[string]any{
		"symbol":         symbol,
		"order_type":     orderType,
		"expected_price": trigger.StringFixed(4),
		"plan_type":      "normal",
	}
	return c.do(ctx, "submit plan order", http.MethodPost, "/contract/private/submit-tp-sl-order", nil, payload, nil)
}

type pnlWire struct {
	Time          int64  `json:"time"`
	RealisedPnL   string `json:"realised_pnl"`
	Fee           string `json:"fee"`
	CloseAvgPrice string `json:"close_avg_price"`
}

// GetRealizedPnLHistory lists realized-PnL settlement rows, most recent
// first, matching the venue's own ordering.
func (c *Client) GetRealizedPnLHistory(ctx context.Context, symbol string) ([]PnLRecord, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", "2") // realized PnL settlements only

	var rows []pnlWire
	if err := c.do(ctx, "get pnl history", http.MethodGet, "/contract/private/transaction-history", q, nil, &rows); err != nil {
		return nil, err
	}

	records := make([]PnLRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, PnLRecord{
			Time:          time.Unix(row.Time, 0),
			RealizedPnL:   row.RealisedPnL,
			Fee:           row.Fee,
			CloseAvgPrice: row.CloseAvgPrice,
		})
	}
	return records, nil
}
