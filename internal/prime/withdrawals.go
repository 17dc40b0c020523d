package prime

import (
	"context"
	"fmt"
	"strings"

	"wallet-txengine-go/internal/engine"

	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"go.uber.org/zap"
)

const destinationBlockchain = "DESTINATION_BLOCKCHAIN"

// Withdraw sends custodial funds from a Prime wallet to an on-chain address
// and returns the Prime activity id. Prime deduplicates on the idempotency
// key, so a retried request never pays out twice.
func (s *Service) Withdraw(ctx context.Context, req engine.CustodialWithdrawal) (string, error) {
	if err := s.requirePortfolio(); err != nil {
		return "", err
	}
	request, err := withdrawalRequest(s.portfolioId, req)
	if err != nil {
		return "", err
	}

	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("portfolio_id", request.PortfolioId),
		zap.String("wallet_id", request.SourceWalletId),
		zap.String("symbol", request.Symbol),
		zap.String("amount", request.Amount),
		zap.String("destination", req.Address),
		zap.String("idempotency_key", request.IdempotencyKey))

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", req.WalletId),
			zap.String("amount", request.Amount),
			zap.String("symbol", request.Symbol),
			zap.Error(err))
		return "", fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("wallet_id", req.WalletId),
		zap.String("amount", request.Amount),
		zap.String("symbol", request.Symbol))

	return response.ActivityId, nil
}

func withdrawalRequest(portfolioId string, req engine.CustodialWithdrawal) (*transactions.CreateWalletWithdrawalRequest, error) {
	if req.WalletId == "" {
		return nil, fmt.Errorf("withdrawal requires a source wallet")
	}
	if req.Address == "" {
		return nil, fmt.Errorf("withdrawal requires a destination address")
	}
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("withdrawal requires an idempotency key")
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %s", req.Amount)
	}

	blockchainAddr := &model.BlockchainAddress{
		Address:           req.Address,
		AccountIdentifier: req.Memo,
	}
	if network := parseNetwork(req.Network); network != nil {
		blockchainAddr.Network = network
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = req.Amount.Currency.Code
	}

	return &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       portfolioId,
		SourceWalletId:    req.WalletId,
		Amount:            req.Amount.Amount.String(),
		IdempotencyKey:    req.IdempotencyKey,
		Symbol:            strings.ToUpper(symbol),
		DestinationType:   destinationBlockchain,
		BlockchainAddress: blockchainAddr,
	}, nil
}

// parseNetwork reads a "<id>-<type>" network such as "ethereum-mainnet" or
// "base-mainnet". A bare or empty network leaves Prime to pick its default.
func parseNetwork(network string) *model.NetworkDetails {
	idx := strings.LastIndex(network, "-")
	if idx <= 0 || idx == len(network)-1 {
		return nil
	}
	return &model.NetworkDetails{
		Id:   network[:idx],
		Type: network[idx+1:],
	}
}
