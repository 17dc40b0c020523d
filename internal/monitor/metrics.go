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

// Package monitor exposes the Prometheus metrics of the engine and quote service.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_quotes_emitted_total",
		Help: "Executable quotes delivered to subscribers",
	}, []string{"pair", "profile"})

	QuoteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_quote_failures_total",
		Help: "Failed quote creation attempts, including quotes expired on arrival",
	}, []string{"pair", "profile"})

	QuoteStreamsExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_quote_streams_exhausted_total",
		Help: "Quote streams terminated after exhausting backoff",
	}, []string{"pair", "profile"})

	PricePolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_price_polls_total",
		Help: "Indicative price polls by outcome",
	}, []string{"pair", "outcome"})

	EngineExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_engine_executions_total",
		Help: "Transaction executions by engine kind and outcome",
	}, []string{"engine", "outcome"})

	EngineExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_engine_execution_duration_seconds",
		Help:    "Duration of the external execute call",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine"})

	AmbiguousExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wallet_ambiguous_executions",
		Help: "Executions awaiting reconciliation",
	})
)
