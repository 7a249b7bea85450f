package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Account holds the settlement account's key material and derived address.
// Settlements are computed against this account's fee-token balances.
type Account struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewAccount creates an Account from a hex-encoded secp256k1 private key.
func NewAccount(privateKeyHex string) (*Account, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}

	return &Account{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// AccountFromConfig resolves the key via LoadKey and derives the account.
func AccountFromConfig(cfg KeyConfig) (*Account, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewAccount(keyHex)
}

// Address returns the Ethereum address derived from the private key.
func (a *Account) Address() common.Address {
	return a.address
}

// SignDigest signs a 32-byte digest using secp256k1 and returns the 65-byte
// signature (r || s || v) with v in {27,28}.
func (a *Account) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("wallet: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := ethcrypto.Sign(digest, a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
