// Package wallet holds the bot's Solana signing key. It loads the key from a
// hex seed, a base58 secret or an encrypted keystore and signs serialized
// transactions returned by the venues.
package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

// Keypair is an ed25519 Solana keypair.
type Keypair struct {
	priv solana.PrivateKey
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet: expected %d-byte seed, got %d bytes", ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: solana.PrivateKey(ed25519.NewKeyFromSeed(seed))}, nil
}

// ParseSecret accepts a hex seed (64 hex chars), a hex secret key (128 hex
// chars), a base58 secret key as exported by Solana wallets, or the JSON
// byte array written by solana-keygen.
func ParseSecret(secret string) (*Keypair, error) {
	s := strings.TrimPrefix(strings.TrimSpace(secret), "0x")
	if strings.HasPrefix(s, "[") {
		return parseByteArray(s)
	}
	if raw, err := hex.DecodeString(s); err == nil && (len(raw) == ed25519.SeedSize || len(raw) == ed25519.PrivateKeySize) {
		return fromSecretBytes(raw)
	}
	priv, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: secret is neither hex nor base58: %w", err)
	}
	return fromSecretBytes(priv)
}

func parseByteArray(s string) (*Keypair, error) {
	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return nil, fmt.Errorf("wallet: parsing key byte array: %w", err)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("wallet: key byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	return fromSecretBytes(raw)
}

func fromSecretBytes(raw []byte) (*Keypair, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return NewKeypairFromSeed(raw)
	case ed25519.PrivateKeySize:
		kp, err := NewKeypairFromSeed(raw[:ed25519.SeedSize])
		if err != nil {
			return nil, err
		}
		if !kp.pub().Equals(solana.PublicKeyFromBytes(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("wallet: secret key public half does not match seed")
		}
		return kp, nil
	default:
		return nil, fmt.Errorf("wallet: unexpected secret length %d", len(raw))
	}
}

func (k *Keypair) pub() solana.PublicKey {
	return k.priv.PublicKey()
}

// PublicKey returns the base58 wallet address.
func (k *Keypair) PublicKey() string {
	return k.pub().String()
}

// Seed returns a copy of the 32-byte seed.
func (k *Keypair) Seed() []byte {
	return ed25519.PrivateKey(k.priv).Seed()
}

// ValidateAddress checks that addr is a base58 32-byte ed25519 point. Program
// derived addresses are off-curve and are rejected unless allowOffCurve is
// set.
func ValidateAddress(addr string, allowOffCurve bool) error {
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return fmt.Errorf("wallet: address %q: %w", addr, err)
	}
	if !allowOffCurve && !IsOnCurve(pk[:]) {
		return fmt.Errorf("wallet: address %q is not on the ed25519 curve", addr)
	}
	return nil
}

// IsOnCurve reports whether b decodes to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
