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

// Package cli implements the walletctl command-line interface. Command state
// lives in package-level variables set up in PersistentPreRunE and released
// in PersistentPostRun.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-txengine-go/internal/common"
	"wallet-txengine-go/internal/config"
	"wallet-txengine-go/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg           *models.Config
	loggerCleanup func()
	metricsServer *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "walletctl",
	Short: "Drive wallet transactions through the transaction engine",
	Long: `walletctl builds, reviews and executes wallet transactions.

Each transaction goes through the same lifecycle: the engine for the
source/target/action combination is selected, the amount is applied, the
review lines are printed and, once confirmed, the transaction is validated
and executed. Every execution is recorded in the local journal.

Example:
  walletctl send --asset ETH --to 0x742d35Cc6634C0532925a3b844Bc9e7595f8b2E0 --amount 0.1
  walletctl trade buy --from USD --to ETH --amount 250
  walletctl quotes --base ETH --quote USD --amount 1
  walletctl reconcile --once`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		outln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func initGlobals() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, loggerCleanup = common.InitializeLogger()

	if cfg.Metrics.Addr != "" {
		metricsServer = startMetricsServer(cfg.Metrics.Addr)
	}
	return nil
}

func cleanup() {
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			zap.L().Warn("Metrics server shutdown failed", zap.Error(err))
		}
		metricsServer = nil
	}
	if loggerCleanup != nil {
		loggerCleanup()
	}
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zap.L().Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func out(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func outln(w io.Writer, args ...interface{}) {
	_, _ = fmt.Fprintln(w, args...)
}
