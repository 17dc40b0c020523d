package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

var (
	_ engine.CustodialWithdrawals   = (*Service)(nil)
	_ engine.ReceiveAddressProvider = (*Service)(nil)
)

const defaultPortfolioName = "Default Portfolio"

type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
	portfolioId     string
	addresses       store.AddressBook
	wallets         engine.CustodialWallets
}

// NewService builds a Prime client. The portfolio is resolved separately
// with UsePortfolio.
func NewService(creds *credentials.Credentials, addresses store.AddressBook) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
		addresses:       addresses,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
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
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// UsePortfolio scopes every later call to portfolioId.
func (s *Service) UsePortfolio(portfolioId string) {
	s.portfolioId = portfolioId
}

// UseWallets sets how interest withdrawals find the wallet they paid out of.
func (s *Service) UseWallets(wallets engine.CustodialWallets) {
	s.wallets = wallets
}

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	request := &portfolios.ListPortfoliosRequest{}

	response, err := s.portfoliosSvc.ListPortfolios(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}

	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	portfolio, ok := findPortfolio(portfolioList, defaultPortfolioName)
	if !ok {
		return nil, fmt.Errorf("default portfolio not found")
	}
	zap.L().Debug("Resolved Prime portfolio",
		zap.String("name", portfolio.Name),
		zap.String("id", portfolio.Id))
	return portfolio, nil
}

func findPortfolio(list []models.Portfolio, name string) (*models.Portfolio, bool) {
	for _, portfolio := range list {
		if portfolio.Name == name {
			return &portfolio, true
		}
	}
	return nil, false
}

func (s *Service) requirePortfolio() error {
	if s.portfolioId == "" {
		return fmt.Errorf("prime portfolio not set")
	}
	return nil
}
