// Package chain holds the on-chain surface: the vault deposit listener and
// the EIP-712 withdrawal signer.
package chain

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Withdraw(address user,uint256 amount,uint256 nonce)
	withdrawTypeHash = ethcrypto.Keccak256(
		[]byte("Withdraw(address user,uint256 amount,uint256 nonce)"),
	)
)

// WithdrawalSigner produces EIP-712 authorizations the vault contract
// accepts for user withdrawals.
type WithdrawalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte
}

// NewWithdrawalSigner creates a signer from a hex-encoded secp256k1 private
// key and the vault's chain id.
func NewWithdrawalSigner(privateKeyHex string, chainID int64) (*WithdrawalSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	s := &WithdrawalSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.domainSep = buildDomainSeparator("PredictdVault", "1", chainID)
	return s, nil
}

// Address returns the address the vault must trust as its withdrawal signer.
func (s *WithdrawalSigner) Address() common.Address {
	return s.address
}

// SignWithdrawal signs a withdrawal authorization. Amount is in the token's
// smallest unit; nonce must be strictly increasing per user on-chain.
func (s *WithdrawalSigner) SignWithdrawal(user string, amount *big.Int, nonce int64) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("chain: withdrawal amount must be positive")
	}

	addr := common.HexToAddress(user)
	structHash := ethcrypto.Keccak256(concatBytes(
		withdrawTypeHash,
		common.LeftPadBytes(addr.Bytes(), 32),
		bigIntTo32Bytes(amount),
		bigIntTo32Bytes(big.NewInt(nonce)),
	))

	digest := eip712Hash(s.domainSep, structHash)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("chain: sign withdrawal: %w", err)
	}
	// go-ethereum returns v in {0,1}; contracts expect {27,28}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func buildDomainSeparator(name, version string, chainID int64) []byte {
	return ethcrypto.Keccak256(concatBytes(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(name)),
		ethcrypto.Keccak256([]byte(version)),
		bigIntTo32Bytes(big.NewInt(chainID)),
	))
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes(
		[]byte{0x19, 0x01},
		domainSep,
		structHash,
	))
}

func bigIntTo32Bytes(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
