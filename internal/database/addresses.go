package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanReceiveAddress(row rowScanner) (*models.ReceiveAddress, error) {
	var addr models.ReceiveAddress
	if err := row.Scan(&addr.Id, &addr.AccountId, &addr.Asset, &addr.Network, &addr.Address, &addr.WalletId, &addr.CreatedAt); err != nil {
		return nil, err
	}
	return &addr, nil
}

func (s *Service) StoreReceiveAddress(ctx context.Context, params models.ReceiveAddress) (*models.ReceiveAddress, error) {
	zap.L().Info("Storing receive address",
		zap.String("account_id", params.AccountId),
		zap.String("asset", params.Asset),
		zap.String("network", params.Network),
		zap.String("address", params.Address))

	_, err := s.db.ExecContext(ctx, queryInsertReceiveAddress,
		uuid.New().String(), params.AccountId, params.Asset, params.Network, params.Address, params.WalletId)
	if err != nil {
		zap.L().Error("Failed to insert receive address",
			zap.String("account_id", params.AccountId),
			zap.String("asset", params.Asset),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert receive address: %w", err)
	}

	// A concurrent writer may have won; the stored row is authoritative.
	return s.GetReceiveAddress(ctx, params.AccountId, params.Asset, params.Network)
}

func (s *Service) GetReceiveAddress(ctx context.Context, accountId, asset, network string) (*models.ReceiveAddress, error) {
	zap.L().Debug("Querying receive address",
		zap.String("account_id", accountId),
		zap.String("asset", asset),
		zap.String("network", network))

	addr, err := scanReceiveAddress(s.db.QueryRowContext(ctx, queryGetReceiveAddress, accountId, asset, network))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %s address on %s for %s", store.ErrNotFound, asset, network, accountId)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query receive address: %w", err)
	}
	return addr, nil
}

func (s *Service) FindAccountByAddress(ctx context.Context, address string) (*models.ReceiveAddress, error) {
	addr, err := scanReceiveAddress(s.db.QueryRowContext(ctx, queryFindAccountByAddress, address))
	if errors.Is(err, sql.ErrNoRows) {
		zap.L().Debug("No account found for address", zap.String("address", address))
		return nil, fmt.Errorf("%w: address %s", store.ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query account by address: %w", err)
	}
	return addr, nil
}
