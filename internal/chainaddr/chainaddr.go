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

package chainaddr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	gethcommon "github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAddress = errors.New("invalid address")

// Networks use the "<id>-<type>" form found in assets.yaml, e.g. ethereum-mainnet.
var evmNetworks = map[string]bool{
	"ethereum": true,
	"base":     true,
	"arbitrum": true,
	"optimism": true,
	"polygon":  true,
}

var bitcoinParams = map[string]*chaincfg.Params{
	"mainnet": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"regtest": &chaincfg.RegressionNetParams,
	"signet":  &chaincfg.SigNetParams,
}

// Supports reports whether Validate does a chain-aware check for network.
func Supports(network string) bool {
	id, kind := split(network)
	if evmNetworks[id] {
		return true
	}
	if id == "bitcoin" {
		_, ok := bitcoinParams[kind]
		return ok
	}
	return false
}

// Validate checks that address is a well formed receive address on network.
// Networks without a chain-aware check only get a basic sanity check.
func Validate(network, address string) error {
	if address == "" || strings.TrimSpace(address) != address || strings.ContainsAny(address, " \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	id, kind := split(network)
	switch {
	case evmNetworks[id]:
		return validateEVM(address)
	case id == "bitcoin":
		params, ok := bitcoinParams[kind]
		if !ok {
			return fmt.Errorf("%w: unknown bitcoin network %q", ErrInvalidAddress, network)
		}
		return validateBitcoin(address, params)
	default:
		return nil
	}
}

func validateEVM(address string) error {
	if !gethcommon.IsHexAddress(address) {
		return fmt.Errorf("%w: %s is not a hex address", ErrInvalidAddress, address)
	}
	body := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		// Mixed case carries an EIP-55 checksum that must match.
		if gethcommon.HexToAddress(address).Hex() != "0x"+body {
			return fmt.Errorf("%w: %s has a bad checksum", ErrInvalidAddress, address)
		}
	}
	return nil
}

func validateBitcoin(address string, params *chaincfg.Params) error {
	decoded, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidAddress, address, err)
	}
	if !decoded.IsForNet(params) {
		return fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, address, params.Name)
	}
	return nil
}

func split(network string) (string, string) {
	id, kind, found := strings.Cut(strings.ToLower(network), "-")
	if !found {
		return id, "mainnet"
	}
	return id, kind
}
