// Package identity manages the ClawMiner signing wallet: secp256k1 key
// lifecycle (load from WIF, generate, sign), and base58check address/WIF
// encoding.
//
// This follows the same "load from config, else persisted storage, else
// generate" discipline as an HDWallet, re-keyed from ed25519 to secp256k1
// P2PKH, and enriched with BIP-39 mnemonic generation so a freshly
// generated wallet is human-recoverable, not just a stored blob.
package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // standard P2PKH hash160

	"github.com/b0ase/clawminer/pkg/errs"
)

const (
	mainnetWIFVersion     byte = 0x80
	mainnetAddressVersion byte = 0x00
	compressedPubKeyFlag  byte = 0x01
)

// Wallet holds a secp256k1 keypair plus its derived WIF and P2PKH address.
type Wallet struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  []byte // compressed, 33 bytes
	Address    string
	WIF        string
	// Mnemonic is set only immediately after Generate(); it is not
	// persisted and is the caller's responsibility to surface once.
	Mnemonic string
}

// Load decodes a WIF string into a Wallet. Returns ErrKeyInvalid wrapped
// with context on any decode failure.
func Load(wif string) (*Wallet, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "decode WIF: %v", err)
	}
	if len(raw) != 1+32+1+4 && len(raw) != 1+32+4 {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "unexpected WIF length %d", len(raw))
	}
	if !verifyChecksum(raw) {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "bad WIF checksum")
	}
	if raw[0] != mainnetWIFVersion {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "unexpected WIF version byte 0x%02x", raw[0])
	}

	keyBytes := raw[1:33]
	priv := secp256k1.PrivKeyFromBytes(keyBytes)
	return fromPrivateKey(priv, wif)
}

// Generate creates a fresh wallet backed by a BIP-39 mnemonic. The mnemonic
// is returned on the Wallet so callers may display it once; it is never
// persisted by this package.
func Generate() (*Wallet, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "generate entropy: %v", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "generate mnemonic: %v", err)
	}
	w, err := fromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	w.Mnemonic = mnemonic
	return w, nil
}

// GenerateFromRandom creates a fresh wallet from raw CSPRNG bytes, bypassing
// the mnemonic path. Used for tests and for environments that don't want a
// recoverable phrase at all.
func GenerateFromRandom() (*Wallet, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "read random seed: %v", err)
	}
	priv := secp256k1.PrivKeyFromBytes(seed[:])
	wif := encodeWIF(priv.Serialize())
	return fromPrivateKey(priv, wif)
}

// fromMnemonic derives a single secp256k1 key from a BIP-39 seed using an
// HMAC-SHA512 master-key construction (SLIP-0010 style), but treats the
// "master key" half directly as the secp256k1 private scalar instead of
// deriving further hardened children — ClawMiner wallets are single-address,
// not HD.
func fromMnemonic(mnemonic string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, "")

	mac := hmac.New(sha512.New, []byte("secp256k1 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)

	priv := secp256k1.PrivKeyFromBytes(sum[:32])
	wif := encodeWIF(priv.Serialize())
	return fromPrivateKey(priv, wif)
}

func fromPrivateKey(priv *secp256k1.PrivateKey, wif string) (*Wallet, error) {
	pub := priv.PubKey().SerializeCompressed()
	addr := deriveAddress(pub)
	return &Wallet{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    addr,
		WIF:        wif,
	}, nil
}

func deriveAddress(compressedPub []byte) string {
	sha := sha256.Sum256(compressedPub)
	r := ripemd160.New()
	r.Write(sha[:])
	pubKeyHash := r.Sum(nil)

	payload := append([]byte{mainnetAddressVersion}, pubKeyHash...)
	return base58.Encode(appendChecksum(payload))
}

func encodeWIF(privKeyBytes []byte) string {
	payload := make([]byte, 0, 1+32+1)
	payload = append(payload, mainnetWIFVersion)
	payload = append(payload, privKeyBytes...)
	payload = append(payload, compressedPubKeyFlag)
	return base58.Encode(appendChecksum(payload))
}

func appendChecksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return append(append([]byte{}, payload...), second[:4]...)
}

func verifyChecksum(full []byte) bool {
	if len(full) < 4 {
		return false
	}
	payload := full[:len(full)-4]
	want := full[len(full)-4:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if second[i] != want[i] {
			return false
		}
	}
	return true
}

// Sign returns a DER-encoded ECDSA signature over SHA256d(data).
func (w *Wallet) Sign(data []byte) ([]byte, error) {
	first := sha256.Sum256(data)
	digest := sha256.Sum256(first[:])
	return w.SignHash(digest)
}

// SignHash signs a 32-byte digest directly, returning a DER-encoded
// signature.
func (w *Wallet) SignHash(digest [32]byte) ([]byte, error) {
	if w.PrivateKey == nil {
		return nil, errs.Wrapf(errs.ErrKeyInvalid, "wallet has no private key")
	}
	sig := ecdsa.Sign(w.PrivateKey, digest[:])
	return sig.Serialize(), nil
}

// PublicKeyHex returns the compressed public key, hex-encoded.
func (w *Wallet) PublicKeyHex() string {
	return hex.EncodeToString(w.PublicKey)
}

// String renders the wallet's address for logging without leaking the WIF.
func (w *Wallet) String() string {
	return fmt.Sprintf("Wallet{address=%s}", w.Address)
}
