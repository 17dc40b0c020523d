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

package engine

import (
	"fmt"

	"wallet-txengine-go/internal/money"
)

// AccountKind is the custody model of a source or destination account
type AccountKind int

const (
	AccountNonCustodial AccountKind = iota + 1
	AccountTrading
	AccountInterest
	AccountFiat
	AccountLinkedBank
)

func (k AccountKind) String() string {
	switch k {
	case AccountNonCustodial:
		return "non_custodial"
	case AccountTrading:
		return "trading"
	case AccountInterest:
		return "interest"
	case AccountFiat:
		return "fiat"
	case AccountLinkedBank:
		return "linked_bank"
	default:
		return fmt.Sprintf("account_kind(%d)", int(k))
	}
}

// IsCustodial reports whether the platform holds the balance.
func (k AccountKind) IsCustodial() bool {
	return k == AccountTrading || k == AccountInterest || k == AccountFiat
}

// Account is a balance the user can move funds from or to.
// ID is the backend identifier: the Prime wallet id for trading accounts,
// the ledger address for interest accounts, the key id for non-custodial
// accounts and the bank link id for linked banks.
type Account struct {
	ID       string
	Label    string
	Kind     AccountKind
	Currency money.Currency
	Network  string
}

func (a Account) String() string {
	if a.Label != "" {
		return a.Label
	}
	return fmt.Sprintf("%s %s", a.Currency.Code, a.Kind)
}
