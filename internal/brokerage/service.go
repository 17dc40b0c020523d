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
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/monitor"

	"go.uber.org/zap"
)

var (
	ErrBackoffExhausted = errors.New("quote backoff exhausted")
	ErrQuoteExpired     = errors.New("quote expired on arrival")
	ErrInvalidInterval  = errors.New("polling interval must be positive")
)

// QuoteRepository creates executable quotes
type QuoteRepository interface {
	CreateQuote(ctx context.Context, req Request) (*Quote, error)
}

// PriceRepository fetches indicative prices
type PriceRepository interface {
	Price(ctx context.Context, req Request) (*Price, error)
}

// FlagProvider serves remotely configured values
type FlagProvider interface {
	QuoteMaxDuration(ctx context.Context) time.Duration
}

// Clock lets tests control time. Sleep returns ctx.Err() when cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StaticFlags serves a fixed quote max duration
type StaticFlags struct {
	MaxDuration time.Duration
}

func (f StaticFlags) QuoteMaxDuration(context.Context) time.Duration { return f.MaxDuration }

type QuoteResult struct {
	Quote *Quote
	Err   error
}

type PriceResult struct {
	Price *Price
	Err   error
}

// QuoteService keeps executable quotes fresh and polls indicative prices.
// Every Quotes/Prices call owns one goroutine; cancel ctx to stop it.
type QuoteService struct {
	quotes  QuoteRepository
	prices  PriceRepository
	flags   FlagProvider
	clock   Clock
	backoff models.BackoffConfig
	// jitter returns a random duration in [0, n).
	jitter func(n time.Duration) time.Duration
}

func NewQuoteService(quotes QuoteRepository, prices PriceRepository, flags FlagProvider, backoff models.BackoffConfig) *QuoteService {
	return &QuoteService{
		quotes:  quotes,
		prices:  prices,
		flags:   flags,
		clock:   systemClock{},
		backoff: backoff,
		jitter:  rand.N[time.Duration], //nolint:gosec // jitter only
	}
}

// WithClock swaps the time source.
func (s *QuoteService) WithClock(c Clock) *QuoteService {
	cp := *s
	cp.clock = c
	return &cp
}

// Quotes streams refreshed quotes for req until ctx is cancelled or
// creation fails MaxAttempts times in a row. The channel is closed when
// the stream ends.
func (s *QuoteService) Quotes(ctx context.Context, req Request) <-chan QuoteResult {
	out := make(chan QuoteResult)
	go s.quoteLoop(ctx, req, out)
	return out
}

func (s *QuoteService) quoteLoop(ctx context.Context, req Request, out chan<- QuoteResult) {
	defer close(out)

	labels := []string{req.Pair(), string(req.Profile)}
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		quote, err := s.fetchQuote(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			monitor.QuoteFailures.WithLabelValues(labels...).Inc()

			if failures >= s.backoff.MaxAttempts {
				monitor.QuoteStreamsExhausted.WithLabelValues(labels...).Inc()
				zap.L().Error("Quote stream exhausted backoff",
					zap.String("pair", req.Pair()),
					zap.Int("attempts", failures),
					zap.Error(err))
				s.send(ctx, out, QuoteResult{Err: fmt.Errorf("%w after %d attempts: %w", ErrBackoffExhausted, failures, err)})
				return
			}

			delay := s.delay(failures - 1)
			zap.L().Warn("Quote creation failed, backing off",
				zap.String("pair", req.Pair()),
				zap.Int("attempt", failures),
				zap.Duration("delay", delay),
				zap.Error(err))
			if s.clock.Sleep(ctx, delay) != nil {
				return
			}
			continue
		}

		failures = 0
		if !s.send(ctx, out, QuoteResult{Quote: quote}) {
			return
		}
		monitor.QuotesEmitted.WithLabelValues(labels...).Inc()

		if s.clock.Sleep(ctx, quote.Response.ExpiresAt.Sub(s.clock.Now())) != nil {
			return
		}
	}
}

// fetchQuote creates a quote, re-pairs it with req and clamps its expiry.
// A quote that is already expired after clamping is reported as a failure.
func (s *QuoteService) fetchQuote(ctx context.Context, req Request) (*Quote, error) {
	quote, err := s.quotes.CreateQuote(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	quote.Request = req
	quote.clampExpiry(now, s.flags.QuoteMaxDuration(ctx))
	if quote.IsExpired(now) {
		return nil, fmt.Errorf("%w: quote %s expired at %s", ErrQuoteExpired, quote.Id(), quote.Response.ExpiresAt.Format(time.RFC3339))
	}
	return quote, nil
}

// delay is exponential with jitter in [d/2, d).
func (s *QuoteService) delay(attempt int) time.Duration {
	d := s.backoff.BaseDelay << attempt
	if d <= 0 || d > s.backoff.MaxDelay {
		d = s.backoff.MaxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + s.jitter(half)
}

func (s *QuoteService) send(ctx context.Context, out chan<- QuoteResult, r QuoteResult) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Prices polls indicative prices every interval. Failed polls are emitted
// inline and polling carries on; only ctx ends the stream. A non-positive
// interval yields a single error and a closed stream.
func (s *QuoteService) Prices(ctx context.Context, req Request, every time.Duration) <-chan PriceResult {
	if every <= 0 {
		out := make(chan PriceResult, 1)
		out <- PriceResult{Err: fmt.Errorf("%w: got %s", ErrInvalidInterval, every)}
		close(out)
		return out
	}
	out := make(chan PriceResult)
	go s.priceLoop(ctx, req, every, out)
	return out
}

func (s *QuoteService) priceLoop(ctx context.Context, req Request, every time.Duration, out chan<- PriceResult) {
	defer close(out)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		price, err := s.prices.Price(ctx, req)
		if ctx.Err() != nil {
			return
		}

		result := PriceResult{Price: price, Err: err}
		if err != nil {
			monitor.PricePolls.WithLabelValues(req.Pair(), "failure").Inc()
			zap.L().Warn("Price poll failed",
				zap.String("pair", req.Pair()),
				zap.Error(err))
		} else {
			monitor.PricePolls.WithLabelValues(req.Pair(), "success").Inc()
		}

		select {
		case out <- result:
		case <-ctx.Done():
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
