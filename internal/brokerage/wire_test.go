package brokerage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQuote = `{
  "quoteId": "a8c0b0e2-7c5d-4d1c-9f1f-8b3a5c7d9e11",
  "quoteMarginPercent": "0.5",
  "quoteCreatedAt": "2026-03-01T10:00:00.123Z",
  "quoteExpiresAt": "2026-03-01T10:01:30.456Z",
  "price": "3000000",
  "feeDetails": {"fee": "200", "feeWithoutPromo": "250", "feeFlags": ["NEW_USER_WAIVER"]},
  "settlementDetails": {"availability": "REGULAR"},
  "depositTerms": {
    "creditCurrency": "USD",
    "availableToTradeMinutesMin": 0,
    "availableToTradeMinutesMax": 0,
    "availableToTradeDisplayMode": "IMMEDIATELY",
    "availableToWithdrawMinutesMin": 5760,
    "availableToWithdrawMinutesMax": 5760,
    "availableToWithdrawDisplayMode": "DAY_RANGE",
    "settlementType": "REGULAR",
    "settlementReason": ""
  }
}`

func TestDecodeQuote(t *testing.T) {
	req := testRequest()
	q, err := DecodeQuote([]byte(sampleQuote), req)
	require.NoError(t, err)

	assert.Equal(t, req, q.Request)
	assert.Equal(t, "a8c0b0e2-7c5d-4d1c-9f1f-8b3a5c7d9e11", q.Id())
	assert.True(t, q.Response.Price.Amount.Equal(decimal.RequireFromString("0.03")))
	assert.Equal(t, "BTC", q.Response.Price.Currency.Code)
	assert.Equal(t, "2.00 USD", q.Response.Fee.Fee.String())
	assert.Equal(t, []string{"NEW_USER_WAIVER"}, q.Response.Fee.Flags)
	assert.Equal(t, 456*time.Millisecond, time.Duration(q.Response.ExpiresAt.Nanosecond()))
	require.NotNil(t, q.Response.DepositTerms)
	assert.Equal(t, 4, q.Response.DepositTerms.WithdrawalLockDays())
}

func TestQuoteWireRoundTrip(t *testing.T) {
	req := testRequest()
	q, err := DecodeQuote([]byte(sampleQuote), req)
	require.NoError(t, err)

	encoded, err := EncodeQuote(q)
	require.NoError(t, err)

	again, err := DecodeQuote(encoded, req)
	require.NoError(t, err)

	assert.Equal(t, q.Response.Id, again.Response.Id)
	assert.True(t, q.Response.Price.Equal(again.Response.Price))
	assert.True(t, q.Response.Fee.FeeWithoutPromo.Equal(again.Response.Fee.FeeWithoutPromo))
	assert.True(t, q.Response.MarginPercent.Equal(again.Response.MarginPercent))
	assert.True(t, q.Response.CreatedAt.Equal(again.Response.CreatedAt))
	assert.True(t, q.Response.ExpiresAt.Equal(again.Response.ExpiresAt))
	assert.Equal(t, q.Response.Settlement, again.Response.Settlement)
	assert.Equal(t, q.Response.DepositTerms, again.Response.DepositTerms)
}

func TestDecodeQuote_MissingId(t *testing.T) {
	_, err := DecodeQuote([]byte(`{"price":"1"}`), testRequest())
	require.Error(t, err)
}

func TestWireTimeKeepsSubMillisecondPrecision(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 1, 30, 456789123, time.FixedZone("CET", 3600))

	data, err := wireTime(at).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-01T09:01:30.456789123Z"`, string(data))

	var back wireTime
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, time.Time(back).Equal(at))
}
