package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keystoreVersion  = 1
)

// keystoreJSON is the on-disk format for an encrypted wallet seed.
type keystoreJSON struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"public_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig carries the information LoadKeypair needs to resolve a wallet.
type KeyConfig struct {
	// Secret is a hex seed, hex secret key or base58 secret key. When set it
	// wins over the keystore file.
	Secret string

	// KeystorePath is a file produced by EncryptKeypair.
	KeystorePath string
	Password     string
}

// EncryptKeypair seals the keypair seed with PBKDF2-HMAC-SHA256 and
// AES-256-GCM and returns the JSON keystore blob.
func EncryptKeypair(kp *Keypair, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("wallet: password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet: generating salt: %w", err)
	}
	gcm, err := keystoreCipher(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet: generating nonce: %w", err)
	}

	out := keystoreJSON{
		Version:    keystoreVersion,
		PublicKey:  kp.PublicKey(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, kp.Seed(), nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKeypair opens a keystore blob produced by EncryptKeypair. The stored
// public key must match the decrypted seed.
func DecryptKeypair(blob []byte, password string) (*Keypair, error) {
	if password == "" {
		return nil, errors.New("wallet: password must not be empty")
	}

	var stored keystoreJSON
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("wallet: parsing keystore: %w", err)
	}
	if stored.Version != keystoreVersion {
		return nil, fmt.Errorf("wallet: unsupported keystore version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding ciphertext: %w", err)
	}

	gcm, err := keystoreCipher(password, salt)
	if err != nil {
		return nil, err
	}
	seed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: decryption failed (wrong password?): %w", err)
	}

	kp, err := NewKeypairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if stored.PublicKey != "" && stored.PublicKey != kp.PublicKey() {
		return nil, fmt.Errorf("wallet: keystore public key %s does not match seed", stored.PublicKey)
	}
	return kp, nil
}

// LoadKeypair resolves the trading wallet: the inline secret first, then the
// encrypted keystore file.
func LoadKeypair(cfg KeyConfig) (*Keypair, error) {
	if cfg.Secret != "" {
		return ParseSecret(cfg.Secret)
	}
	if cfg.KeystorePath != "" {
		data, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("wallet: reading keystore: %w", err)
		}
		return DecryptKeypair(data, cfg.Password)
	}
	return nil, errors.New("wallet: no key source configured (set secret or keystore path)")
}

func keystoreCipher(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("wallet: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: creating GCM: %w", err)
	}
	return gcm, nil
}
