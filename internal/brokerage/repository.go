/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// HTTPError is returned for any non-2xx brokerage response
type HTTPError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("brokerage %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// TransactionLimits are the custodial min/max caps for one product.
// Optional caps are nil when the backend does not impose them.
type TransactionLimits struct {
	Min    money.Money
	Max    *money.Money
	Daily  *money.Money
	Annual *money.Money
}

// OrderRequest turns a quote into an executable order
type OrderRequest struct {
	Quote              *Quote
	IdempotencyKey     string
	RefundAddress      string
	DestinationAddress string
}

// Client talks to the brokerage/custodial HTTP API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg models.BrokerageConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("brokerage base url cannot be empty")
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("brokerage requests per second must be positive, got %v", cfg.RequestsPerSecond)
	}

	httpClient, err := createCustomHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return newClient(cfg.BaseURL, cfg.APIKey, httpClient, rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)), nil
}

func newClient(baseURL, apiKey string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// CreateQuote asks the brokerage for a fresh executable quote.
func (c *Client) CreateQuote(ctx context.Context, req Request) (*Quote, error) {
	body, err := c.do(ctx, http.MethodPost, "/brokerage/quote", nil, encodeQuoteRequest(req))
	if err != nil {
		return nil, fmt.Errorf("unable to create quote for %s: %w", req.Pair(), err)
	}
	return DecodeQuote(body, req)
}

// GetQuote re-reads an existing quote by id.
func (c *Client) GetQuote(ctx context.Context, id string, req Request) (*Quote, error) {
	body, err := c.do(ctx, http.MethodGet, "/brokerage/quote/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to get quote %s: %w", id, err)
	}
	return DecodeQuote(body, req)
}

// Price fetches an indicative price for the request.
func (c *Client) Price(ctx context.Context, req Request) (*Price, error) {
	query := url.Values{}
	query.Set("currencyPair", req.Pair())
	query.Set("amount", req.Amount.Minor())
	query.Set("paymentMethod", string(req.PaymentMethod))
	query.Set("orderProfileName", string(req.Profile))

	body, err := c.do(ctx, http.MethodGet, "/brokerage/price", query, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to get price for %s: %w", req.Pair(), err)
	}

	var w priceWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("unable to decode price: %w", err)
	}

	price, err := money.FromMinor(w.Price, req.Quote)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	fee, err := minorOrZero(w.StaticFee, req.Base)
	if err != nil {
		return nil, fmt.Errorf("price fee: %w", err)
	}
	result, err := minorOrZero(w.ResultAmount, req.Quote)
	if err != nil {
		return nil, fmt.Errorf("price result: %w", err)
	}

	return &Price{
		Request:   req,
		Price:     price,
		Fee:       fee,
		Result:    result,
		Timestamp: time.Time(w.Timestamp),
	}, nil
}

// CreateOrder executes a quote.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	q := req.Quote
	payload := orderRequestWire{
		QuoteId:            q.Id(),
		Pair:               q.Request.Pair(),
		InputValue:         q.Request.Amount.Minor(),
		PaymentMethod:      string(q.Request.PaymentMethod),
		Profile:            string(q.Request.Profile),
		IdempotencyKey:     req.IdempotencyKey,
		RefundAddress:      req.RefundAddress,
		DestinationAddress: req.DestinationAddress,
	}

	body, err := c.do(ctx, http.MethodPost, "/brokerage/orders", nil, payload)
	if err != nil {
		return nil, fmt.Errorf("unable to create order for quote %s: %w", q.Id(), err)
	}

	var w orderWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("unable to decode order: %w", err)
	}

	input, err := minorOrZero(w.InputAmount, q.Request.Base)
	if err != nil {
		return nil, fmt.Errorf("order input: %w", err)
	}
	output, err := minorOrZero(w.OutputAmount, q.Request.Quote)
	if err != nil {
		return nil, fmt.Errorf("order output: %w", err)
	}

	return &Order{
		Id:             w.Id,
		QuoteId:        w.QuoteId,
		State:          w.State,
		InputAmount:    input,
		OutputAmount:   output,
		DepositAddress: w.DepositAddress,
		CreatedAt:      time.Time(w.CreatedAt),
	}, nil
}

// UpdateOrder attaches the on-chain deposit hash to an order.
func (c *Client) UpdateOrder(ctx context.Context, orderId, txHash string) error {
	payload := map[string]string{"action": "DEPOSIT_SENT", "txHash": txHash}
	if _, err := c.do(ctx, http.MethodPut, "/brokerage/orders/"+url.PathEscape(orderId), nil, payload); err != nil {
		return fmt.Errorf("unable to update order %s: %w", orderId, err)
	}
	return nil
}

// WithdrawalFee returns the custodial fee and minimum for withdrawing currency.
func (c *Client) WithdrawalFee(ctx context.Context, currency money.Currency, product string) (fee, minAmount money.Money, err error) {
	query := url.Values{}
	query.Set("currency", currency.Code)
	query.Set("product", product)

	body, err := c.do(ctx, http.MethodGet, "/custodial/withdrawals/fees", query, nil)
	if err != nil {
		return money.Money{}, money.Money{}, fmt.Errorf("unable to get withdrawal fees for %s: %w", currency, err)
	}

	var w withdrawalFeesWire
	if err := json.Unmarshal(body, &w); err != nil {
		return money.Money{}, money.Money{}, fmt.Errorf("unable to decode withdrawal fees: %w", err)
	}

	if fee, err = minorOrZero(w.Fee, currency); err != nil {
		return money.Money{}, money.Money{}, err
	}
	if minAmount, err = minorOrZero(w.MinAmount, currency); err != nil {
		return money.Money{}, money.Money{}, err
	}
	return fee, minAmount, nil
}

// TransactionLimits returns product limits expressed in currency.
func (c *Client) TransactionLimits(ctx context.Context, currency money.Currency, product string) (*TransactionLimits, error) {
	query := url.Values{}
	query.Set("currency", currency.Code)
	query.Set("product", product)

	body, err := c.do(ctx, http.MethodGet, "/limits/overview", query, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to get limits for %s: %w", currency, err)
	}

	var w limitsWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("unable to decode limits: %w", err)
	}

	minimum, err := minorOrZero(w.Min, currency)
	if err != nil {
		return nil, err
	}
	limits := &TransactionLimits{Min: minimum}
	for _, opt := range []struct {
		raw *string
		dst **money.Money
	}{
		{w.Max, &limits.Max},
		{w.Daily, &limits.Daily},
		{w.Annual, &limits.Annual},
	} {
		if opt.raw == nil {
			continue
		}
		m, err := money.FromMinor(*opt.raw, currency)
		if err != nil {
			return nil, err
		}
		*opt.dst = &m
	}
	return limits, nil
}

// ExchangeRate returns how many units of to one unit of from buys.
func (c *Client) ExchangeRate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	if from.Code == to.Code {
		return decimal.NewFromInt(1), nil
	}

	query := url.Values{}
	query.Set("base", from.Code)
	query.Set("quote", to.Code)

	body, err := c.do(ctx, http.MethodGet, "/price/rate", query, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to get rate %s-%s: %w", from, to, err)
	}

	var w rateWire
	if err := json.Unmarshal(body, &w); err != nil {
		return decimal.Zero, fmt.Errorf("unable to decode rate: %w", err)
	}
	return w.Rate, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("unable to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	zap.L().Debug("Brokerage request",
		zap.String("method", method),
		zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
