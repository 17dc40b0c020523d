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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"wallet-txengine-go/internal/models"
)

// maxQuoteAttempts is the number of consecutive quote failures that ends a
// quote stream.
const maxQuoteAttempts = 8

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	requestTimeout, err := getEnvPositiveDuration("BROKERAGE_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	requestsPerSecond, err := getEnvFloat("BROKERAGE_REQUESTS_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}

	backoffBase, err := getEnvPositiveDuration("QUOTE_BACKOFF_BASE_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	backoffMax, err := getEnvPositiveDuration("QUOTE_BACKOFF_MAX_DELAY", 30*time.Second)
	if err != nil {
		return nil, err
	}

	quoteMaxDuration, err := getEnvPositiveDuration("QUOTE_MAX_DURATION", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	priceInterval, err := getEnvPositiveDuration("PRICE_POLLING_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	reconcilerInterval, err := getEnvPositiveDuration("RECONCILER_POLLING_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	reconcilerLookback, err := getEnvPositiveDuration("RECONCILER_LOOKBACK_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	maxAttempts := getEnvInt("QUOTE_BACKOFF_MAX_ATTEMPTS", maxQuoteAttempts)
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("QUOTE_BACKOFF_MAX_ATTEMPTS must be positive, got %d", maxAttempts)
	}
	if backoffBase > backoffMax {
		return nil, fmt.Errorf("QUOTE_BACKOFF_BASE_DELAY (%s) exceeds QUOTE_BACKOFF_MAX_DELAY (%s)", backoffBase, backoffMax)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "executions.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Brokerage: models.BrokerageConfig{
			BaseURL:           getEnvString("BROKERAGE_BASE_URL", ""),
			APIKey:            getEnvString("BROKERAGE_API_KEY", ""),
			RequestsPerSecond: requestsPerSecond,
			Burst:             getEnvInt("BROKERAGE_BURST", 10),
			RequestTimeout:    requestTimeout,
		},
		Quotes: models.QuoteConfig{
			Backoff: models.BackoffConfig{
				MaxAttempts: maxAttempts,
				BaseDelay:   backoffBase,
				MaxDelay:    backoffMax,
			},
			MaxDuration:   quoteMaxDuration,
			PriceInterval: priceInterval,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "wallet-custodial"),
		},
		Reconciler: models.ReconcilerConfig{
			PollingInterval: reconcilerInterval,
			LookbackWindow:  reconcilerLookback,
		},
		Engine: models.EngineConfig{
			DisplayCurrency:  getEnvString("DISPLAY_CURRENCY", "USD"),
			AssetsFile:       getEnvString("ASSETS_FILE", "assets.yaml"),
			ValidateAllKinds: getEnvBool("ENGINE_VALIDATE_ALL_KINDS", false),
		},
		Metrics: models.MetricsConfig{
			Addr: getEnvString("METRICS_ADDR", ""),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

// getEnvPositiveDuration is getEnvDuration for intervals and timeouts, which
// must be above zero.
func getEnvPositiveDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	duration, err := getEnvDuration(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, duration)
	}
	return duration, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
