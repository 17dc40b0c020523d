package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wallet-txengine-go/internal/brokerage"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/money"
	"wallet-txengine-go/internal/store"
)

var (
	eth = money.Crypto("ETH", 18)
	btc = money.Crypto("BTC", 8)
	usd = money.Fiat("USD")

	testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

const (
	ethAddress   = "0x52908400098527886e0f7030069857d2e4169ee7"
	otherAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

func amt(value string, c money.Currency) money.Money {
	return money.New(decimal.RequireFromString(value), c)
}

func amtPtr(value string, c money.Currency) *money.Money {
	m := amt(value, c)
	return &m
}

var (
	nonCustodialETH = Account{ID: "key-eth", Label: "My ETH wallet", Kind: AccountNonCustodial, Currency: eth, Network: "ethereum-mainnet"}
	nonCustodialBTC = Account{ID: "key-btc", Label: "My BTC wallet", Kind: AccountNonCustodial, Currency: btc, Network: "bitcoin-mainnet"}
	tradingETH      = Account{ID: "wallet-eth", Label: "ETH trading", Kind: AccountTrading, Currency: eth, Network: "ethereum-mainnet"}
	tradingBTC      = Account{ID: "wallet-btc", Label: "BTC trading", Kind: AccountTrading, Currency: btc, Network: "bitcoin-mainnet"}
	interestETH     = Account{ID: "users:alice:interest", Label: "ETH rewards", Kind: AccountInterest, Currency: eth, Network: "ethereum-mainnet"}
	fiatUSD         = Account{ID: "fiat-usd", Label: "USD balance", Kind: AccountFiat, Currency: usd}
	bankUSD         = Account{ID: "bank-1", Label: "Checking ••1234", Kind: AccountLinkedBank, Currency: usd}
)

type fakeBalances struct {
	mu       sync.Mutex
	balances map[string]money.Money
	calls    int
}

func (f *fakeBalances) Balance(_ context.Context, account Account) (money.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m, ok := f.balances[account.ID]
	if !ok {
		return money.Zero(account.Currency), nil
	}
	return m, nil
}

type fakeReceive struct {
	addresses map[string]string
}

func (f *fakeReceive) ReceiveAddress(_ context.Context, account Account) (string, error) {
	a, ok := f.addresses[account.ID]
	if !ok {
		return "", errors.New("no receive address")
	}
	return a, nil
}

type fakeRates struct{}

// ExchangeRate prices everything at 2 units of to per unit of from.
func (fakeRates) ExchangeRate(_ context.Context, from, to money.Currency) (decimal.Decimal, error) {
	if from.Code == to.Code {
		return decimal.NewFromInt(1), nil
	}
	return decimal.NewFromInt(2), nil
}

type fakeLimits struct {
	limits *brokerage.TransactionLimits
}

func (f *fakeLimits) TransactionLimits(context.Context, money.Currency, string) (*brokerage.TransactionLimits, error) {
	return f.limits, nil
}

type fakeFees struct {
	fee, minimum money.Money
}

func (f *fakeFees) WithdrawalFee(context.Context, money.Currency, string) (money.Money, money.Money, error) {
	return f.fee, f.minimum, nil
}

type fakeOnChain struct {
	mu         sync.Mutex
	fees       map[FeeLevel]money.Money
	hash       string
	signErr    error
	signed     []OnChainTransfer
	broadcasts int
}

func (f *fakeOnChain) FeeEstimates(context.Context, Account) (map[FeeLevel]money.Money, error) {
	return f.fees, nil
}

func (f *fakeOnChain) Sign(_ context.Context, t OnChainTransfer) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return nil, f.signErr
	}
	f.signed = append(f.signed, t)
	return []byte("signed:" + t.To), nil
}

func (f *fakeOnChain) Broadcast(context.Context, Account, []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts++
	return f.hash, nil
}

func (f *fakeOnChain) lastTransfer() OnChainTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signed[len(f.signed)-1]
}

type fakeMetadata struct {
	memo bool
}

func (f fakeMetadata) SupportsMemo(money.Currency, string) bool { return f.memo }

type fakeWithdrawals struct {
	reference string
	err       error
	requests  []CustodialWithdrawal
}

func (f *fakeWithdrawals) Withdraw(_ context.Context, req CustodialWithdrawal) (string, error) {
	f.requests = append(f.requests, req)
	return f.reference, f.err
}

type ledgerHold struct {
	account  string
	amount   money.Money
	released bool
}

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]money.Money
	txId       string
	transfers  int
	holds      map[string]*ledgerHold
	releaseErr error
}

func (f *fakeLedger) Balance(_ context.Context, account Account) (money.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.balances[account.ID]; ok {
		return m, nil
	}
	return money.Zero(account.Currency), nil
}

func (f *fakeLedger) Transfer(context.Context, Account, Account, money.Money, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers++
	return f.txId, nil
}

func (f *fakeLedger) Hold(_ context.Context, from Account, amount money.Money, reference string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holds == nil {
		f.holds = map[string]*ledgerHold{}
	}
	if _, ok := f.holds[reference]; ok {
		return "hold-" + reference, nil
	}
	bal, ok := f.balances[from.ID]
	if !ok {
		bal = money.Zero(from.Currency)
	}
	if bal.LessThan(amount) {
		return "", errors.New("insufficient ledger funds")
	}
	left, err := bal.Sub(amount)
	if err != nil {
		return "", err
	}
	f.balances[from.ID] = left
	f.holds[reference] = &ledgerHold{account: from.ID, amount: amount}
	return "hold-" + reference, nil
}

func (f *fakeLedger) Release(_ context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	h, ok := f.holds[reference]
	if !ok || h.released {
		return nil
	}
	back, err := f.balances[h.account].Add(h.amount)
	if err != nil {
		return err
	}
	f.balances[h.account] = back
	h.released = true
	return nil
}

func (f *fakeLedger) hold(reference string) *ledgerHold {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holds[reference]
}

type fakeWallets map[string]string

func (f fakeWallets) WithdrawalWallet(symbol, _ string) (string, error) {
	w, ok := f[symbol]
	if !ok {
		return "", errors.New("no wallet for " + symbol)
	}
	return w, nil
}

// fakeQuotes prices at a fixed price in the quote currency with a fee in
// the base currency.
type fakeQuotes struct {
	price     string
	fee       string
	expiresIn time.Duration
	terms     *brokerage.DepositTerms
	requests  []brokerage.Request
	// reads holds the ids passed to GetQuote. readExpired makes the
	// brokerage report the quote as already expired.
	reads       []string
	readExpired bool
}

func (f *fakeQuotes) CreateQuote(_ context.Context, req brokerage.Request) (*brokerage.Quote, error) {
	f.requests = append(f.requests, req)
	return f.quote(req), nil
}

func (f *fakeQuotes) GetQuote(_ context.Context, id string, req brokerage.Request) (*brokerage.Quote, error) {
	f.reads = append(f.reads, id)
	q := f.quote(req)
	if f.readExpired {
		q.Response.ExpiresAt = testNow.Add(-time.Second)
	}
	return q, nil
}

func (f *fakeQuotes) quote(req brokerage.Request) *brokerage.Quote {
	return &brokerage.Quote{
		Request: req,
		Response: brokerage.Response{
			Id:           "quote-1",
			Price:        amt(f.price, req.Quote),
			Fee:          brokerage.FeeDetails{Fee: amt(f.fee, req.Base), FeeWithoutPromo: amt(f.fee, req.Base)},
			CreatedAt:    testNow,
			ExpiresAt:    testNow.Add(f.expiresIn),
			Settlement:   brokerage.SettlementDetails{Availability: brokerage.SettlementInstant},
			DepositTerms: f.terms,
		},
	}
}

type fakeOrders struct {
	order     *brokerage.Order
	updateErr error
	created   []brokerage.OrderRequest
	updated   map[string]string
}

func (f *fakeOrders) CreateOrder(_ context.Context, req brokerage.OrderRequest) (*brokerage.Order, error) {
	f.created = append(f.created, req)
	return f.order, nil
}

func (f *fakeOrders) UpdateOrder(_ context.Context, orderId, txHash string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = map[string]string{}
	}
	f.updated[orderId] = txHash
	return nil
}

type fakeFiat struct {
	terms     FiatDepositTerms
	reference string
}

func (f *fakeFiat) DepositTerms(context.Context, Account, money.Money) (FiatDepositTerms, error) {
	return f.terms, nil
}

func (f *fakeFiat) Deposit(context.Context, Account, Account, money.Money, string) (string, error) {
	return f.reference, nil
}

func (f *fakeFiat) Withdraw(context.Context, Account, Account, money.Money, string) (string, error) {
	return f.reference, nil
}

type fakeSettlement struct {
	availability string
}

func (f fakeSettlement) CheckSettlement(context.Context, Account, money.Money) (brokerage.SettlementDetails, error) {
	return brokerage.SettlementDetails{Availability: f.availability}, nil
}

type fakeBitPay struct {
	hash     string
	verified []string
	paid     []string
}

func (f *fakeBitPay) Verify(_ context.Context, invoiceId string, _ []byte) error {
	f.verified = append(f.verified, invoiceId)
	return nil
}

func (f *fakeBitPay) Pay(_ context.Context, invoiceId string, _ []byte) (string, error) {
	f.paid = append(f.paid, invoiceId)
	return f.hash, nil
}

type fakeSigner struct {
	sig    []byte
	hashes [][]byte
}

func (f *fakeSigner) SignHash(_ context.Context, _ string, hash []byte) ([]byte, error) {
	f.hashes = append(f.hashes, hash)
	return f.sig, nil
}

type fakeInterest struct {
	terms InterestTerms
}

func (f fakeInterest) Terms(context.Context, Account) (InterestTerms, error) {
	return f.terms, nil
}

// memJournal is an in-memory store.Journal
type memJournal struct {
	mu   sync.Mutex
	rows map[string]*models.Execution
}

func newMemJournal() *memJournal {
	return &memJournal{rows: map[string]*models.Execution{}}
}

func (j *memJournal) Begin(_ context.Context, p store.BeginParams) (*models.Execution, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.rows[p.AttemptId]; ok {
		return nil, store.ErrDuplicateExecution
	}
	row := &models.Execution{
		Id:        "row-" + p.AttemptId,
		AttemptId: p.AttemptId,
		Engine:    p.Engine,
		Asset:     p.Asset,
		Status:    models.ExecutionPending,
		Amount:    decimal.RequireFromString(p.Amount),
	}
	j.rows[p.AttemptId] = row
	return row, nil
}

func (j *memJournal) set(attemptId string, fn func(*models.Execution)) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	row, ok := j.rows[attemptId]
	if !ok {
		return store.ErrNotFound
	}
	fn(row)
	return nil
}

func (j *memJournal) Complete(_ context.Context, attemptId, txHash, reference string) error {
	return j.set(attemptId, func(r *models.Execution) {
		r.Status, r.TxHash, r.Reference = models.ExecutionCompleted, txHash, reference
	})
}

func (j *memJournal) Fail(_ context.Context, attemptId, reason string) error {
	return j.set(attemptId, func(r *models.Execution) { r.Status, r.Error = models.ExecutionFailed, reason })
}

func (j *memJournal) MarkAmbiguous(_ context.Context, attemptId, reference, reason string) error {
	return j.set(attemptId, func(r *models.Execution) {
		r.Status, r.Reference, r.Error = models.ExecutionAmbiguous, reference, reason
	})
}

func (j *memJournal) ListAmbiguous(context.Context, time.Time) ([]models.Execution, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.Execution
	for _, r := range j.rows {
		if r.Status == models.ExecutionAmbiguous {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (j *memJournal) Resolve(_ context.Context, attemptId, status, reference string) error {
	return j.set(attemptId, func(r *models.Execution) { r.Status, r.Reference = status, reference })
}

func (j *memJournal) Get(_ context.Context, attemptId string) (*models.Execution, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	row, ok := j.rows[attemptId]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (j *memJournal) Close() {}

// testDeps wires every collaborator with workable defaults.
func testDeps() Dependencies {
	return Dependencies{
		Balances: &fakeBalances{balances: map[string]money.Money{
			nonCustodialETH.ID: amt("10", eth),
			tradingETH.ID:      amt("5", eth),
			tradingBTC.ID:      amt("2", btc),
			interestETH.ID:     amt("3", eth),
			fiatUSD.ID:         amt("500", usd),
			bankUSD.ID:         amt("1000", usd),
		}},
		ReceiveAddresses: &fakeReceive{addresses: map[string]string{
			nonCustodialETH.ID: ethAddress,
			tradingETH.ID:      otherAddress,
			interestETH.ID:     otherAddress,
		}},
		Rates:         fakeRates{},
		CustodialFees: &fakeFees{fee: amt("0.001", eth), minimum: amt("0.01", eth)},
		Settlement:    fakeSettlement{availability: brokerage.SettlementInstant},
		FiatTransfers: &fakeFiat{terms: FiatDepositTerms{Fee: amt("2", usd)}, reference: "deposit-1"},
		OnChain: &fakeOnChain{
			fees: map[FeeLevel]money.Money{FeeRegular: amt("0.01", eth), FeePriority: amt("0.02", eth)},
			hash: "0xabc",
		},
		Metadata:    fakeMetadata{memo: true},
		Withdrawals: &fakeWithdrawals{reference: "activity-1"},
		Ledger:      &fakeLedger{balances: map[string]money.Money{tradingETH.ID: amt("5", eth), interestETH.ID: amt("3", eth)}, txId: "ledger-tx-1"},
		Wallets:     fakeWallets{"ETH": tradingETH.ID},
		Orders:      &fakeOrders{order: &brokerage.Order{Id: "order-1", State: "PENDING_DEPOSIT", DepositAddress: otherAddress}},
		Quotes:      &fakeQuotes{price: "30000", fee: "1", expiresIn: time.Minute},
		BitPay:      &fakeBitPay{hash: "0xbitpay"},
		Signer:      &fakeSigner{sig: make([]byte, 65)},
		Interest:    fakeInterest{terms: InterestTerms{Rate: decimal.RequireFromString("4.5"), LockUpDays: 7}},
		Now:         func() time.Time { return testNow },
	}
}
