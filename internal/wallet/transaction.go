package wallet

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// DecodeTransaction parses a serialized legacy or v0 transaction.
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty transaction")
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, err
	}
	if tx.Message.Header.NumRequiredSignatures == 0 {
		return nil, errors.New("transaction requires no signatures")
	}
	return tx, nil
}

// SignTransaction fills the wallet's signature slot of a serialized
// transaction and returns the new serialization. Other signers' slots are
// left as they are.
func (k *Keypair) SignTransaction(raw []byte) ([]byte, error) {
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	pub := k.pub()
	if !tx.Message.IsSigner(pub) {
		return nil, fmt.Errorf("%w: wallet %s is not a required signer", domain.ErrSigningFailed, pub)
	}
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &k.priv
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return out, nil
}

// Signature returns the first signature of a serialized transaction, which
// Solana uses as the transaction id.
func Signature(raw []byte) (solana.Signature, error) {
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("wallet: %w", err)
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0] == (solana.Signature{}) {
		return solana.Signature{}, errors.New("wallet: transaction carries no signature")
	}
	return tx.Signatures[0], nil
}
