package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/database"
	"wallet-txengine-go/internal/engine"
	"wallet-txengine-go/internal/formance"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/prime"
	"wallet-txengine-go/internal/reconciler"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

// CLIKinds are the engine kinds walletctl drives with the backends it wires.
var CLIKinds = []engine.Kind{
	engine.KindTradingSend,
	engine.KindTradingSwap,
	engine.KindBuy,
	engine.KindTradingSell,
}

type Services struct {
	Journal          *database.Service
	Prime            *prime.Service
	Ledger           *formance.Service
	Brokerage        *brokerage.Client
	Quotes           *brokerage.QuoteService
	Assets           *AssetCatalog
	Factory          *engine.Factory
	DefaultPortfolio *models.Portfolio
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the journal and connects every backend the
// engines need, then checks the factory can build the kinds walletctl uses
// (or all kinds when cfg.Engine.ValidateAllKinds is set).
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	assets, err := LoadAssetConfig(cfg.Engine.AssetsFile)
	if err != nil {
		return nil, err
	}
	catalog := NewAssetCatalog(assets)

	display, err := catalog.Currency(cfg.Engine.DisplayCurrency)
	if err != nil {
		return nil, fmt.Errorf("display currency: %w", err)
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{Journal: dbService, Assets: catalog}

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		services.Close()
		return nil, err
	}

	primeService, err := prime.NewService(creds, dbService)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Prime = primeService

	zap.L().Info("Finding default portfolio")
	defaultPortfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		services.Close()
		return nil, err
	}
	primeService.UsePortfolio(defaultPortfolio.Id)
	primeService.UseWallets(catalog)
	services.DefaultPortfolio = defaultPortfolio
	zap.L().Info("Using default portfolio",
		zap.String("name", defaultPortfolio.Name),
		zap.String("id", defaultPortfolio.Id))

	ledger, err := formance.NewService(ctx, cfg.Formance)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Ledger = ledger

	client, quotes, err := newBrokerage(cfg)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Brokerage = client
	services.Quotes = quotes

	services.Factory = engine.NewFactory(engine.Dependencies{
		Balances:         ledger,
		ReceiveAddresses: primeService,
		Rates:            client,
		Limits:           client,
		CustodialFees:    client,
		Metadata:         catalog,
		Withdrawals:      primeService,
		Ledger:           ledger,
		Wallets:          catalog,
		Orders:           client,
		Quotes:           client,
		Now:              time.Now,
	}, display)

	kinds := CLIKinds
	if cfg.Engine.ValidateAllKinds {
		kinds = engine.AllKinds
	}
	if err := services.Factory.Validate(kinds...); err != nil {
		services.Close()
		return nil, fmt.Errorf("engine wiring incomplete: %w", err)
	}

	return services, nil
}

// InitializeQuotesOnly connects just the brokerage API, for quote and price
// streams that need neither the journal nor custody backends.
func InitializeQuotesOnly(cfg *models.Config) (*brokerage.QuoteService, *AssetCatalog, error) {
	assets, err := LoadAssetConfig(cfg.Engine.AssetsFile)
	if err != nil {
		return nil, nil, err
	}
	_, quotes, err := newBrokerage(cfg)
	if err != nil {
		return nil, nil, err
	}
	return quotes, NewAssetCatalog(assets), nil
}

// NewReconciler resolves ambiguous Prime withdrawals and ledger transfers.
func (cs *Services) NewReconciler(cfg models.ReconcilerConfig) *reconciler.Reconciler {
	return reconciler.New(reconciler.Config{
		Journal:         cs.Journal,
		Checkers:        []reconciler.StatusChecker{cs.Prime, cs.Ledger},
		Compensators:    []reconciler.Compensator{cs.Ledger},
		PollingInterval: cfg.PollingInterval,
		LookbackWindow:  cfg.LookbackWindow,
	})
}

func newBrokerage(cfg *models.Config) (*brokerage.Client, *brokerage.QuoteService, error) {
	client, err := brokerage.NewClient(cfg.Brokerage)
	if err != nil {
		return nil, nil, err
	}
	quotes := brokerage.NewQuoteService(client, client,
		brokerage.StaticFlags{MaxDuration: cfg.Quotes.MaxDuration}, cfg.Quotes.Backoff)
	return client, quotes, nil
}

func (cs *Services) Close() {
	if cs.Ledger != nil {
		cs.Ledger.Close()
	}
	if cs.Journal != nil {
		cs.Journal.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
