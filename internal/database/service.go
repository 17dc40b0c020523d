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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Service must satisfy the store contracts.
var (
	_ store.Journal     = (*Service)(nil)
	_ store.AddressBook = (*Service)(nil)
)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite execution journal", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(ctx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Execution journal initialized successfully")
	return service, nil
}

// newServiceWithDB wraps an open handle and creates the schema.
func newServiceWithDB(ctx context.Context, db *sql.DB) (*Service, error) {
	s := &Service{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- One row per execute call; attempt_id keeps execute to a single call
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL UNIQUE,
		engine TEXT NOT NULL,
		source_account TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		asset TEXT NOT NULL,
		network TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed', 'ambiguous')),
		tx_hash TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_status_created ON executions(status, created_at);

	-- Receive addresses generated per account and network
	CREATE TABLE IF NOT EXISTS receive_addresses (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL,
		wallet_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (account_id, asset, network)
	);

	CREATE INDEX IF NOT EXISTS idx_receive_addresses_address ON receive_addresses(address);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
