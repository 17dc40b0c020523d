package prime

import (
	"context"
	"errors"
	"fmt"

	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
)

// ReceiveAddress returns the address funds for account should be sent to.
// Trading accounts get a Prime deposit address, generated on first use and
// reused afterwards. Other accounts must have an address registered in the
// address book.
func (s *Service) ReceiveAddress(ctx context.Context, account engine.Account) (string, error) {
	if s.addresses == nil {
		return "", fmt.Errorf("no address book configured")
	}

	cached, err := s.addresses.GetReceiveAddress(ctx, account.ID, account.Currency.Code, account.Network)
	if err == nil {
		return cached.Address, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("unable to read cached address for %s: %w", account, err)
	}
	if account.Kind != engine.AccountTrading {
		return "", fmt.Errorf("no receive address registered for %s on %s", account, account.Network)
	}

	created, err := s.CreateDepositAddress(ctx, account.ID, account.Currency.Code, account.Network)
	if err != nil {
		return "", err
	}

	stored, err := s.addresses.StoreReceiveAddress(ctx, models.ReceiveAddress{
		AccountId: account.ID,
		Asset:     account.Currency.Code,
		Network:   account.Network,
		Address:   created.Address,
		WalletId:  account.ID,
	})
	if err != nil {
		// The address exists at Prime either way; the next call generates
		// another one, which Prime allows.
		zap.L().Warn("Failed to cache deposit address",
			zap.String("wallet_id", account.ID),
			zap.String("address", created.Address),
			zap.Error(err))
		return created.Address, nil
	}
	return stored.Address, nil
}

func (s *Service) CreateDepositAddress(ctx context.Context, walletId, asset, network string) (*models.DepositAddress, error) {
	if err := s.requirePortfolio(); err != nil {
		return nil, err
	}
	request := &wallets.CreateWalletAddressRequest{
		PortfolioId: s.portfolioId,
		WalletId:    walletId,
		NetworkId:   network,
	}

	response, err := s.walletsSvc.CreateWalletAddress(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet address: %w", err)
	}

	zap.L().Info("Created Prime deposit address",
		zap.String("wallet_id", walletId),
		zap.String("asset", asset),
		zap.String("network", network))

	return &models.DepositAddress{
		Id:      response.AccountIdentifier,
		Address: response.Address,
		Network: network,
		Asset:   asset,
	}, nil
}
