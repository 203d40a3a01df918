package jwthelper

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/youmark/pkcs8"
)

const (
	pemTypeEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
	pemTypePublicKey           = "PUBLIC KEY"
	pemTypeRSAPublicKey        = "RSA PUBLIC KEY"
)

// DecryptPrivateKeyPEM decodes a PEM-armored encrypted PKCS#8 private key and
// decrypts it with passphrase. Only RSA keys are accepted.
func DecryptPrivateKeyPEM(data []byte, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, newError(ErrCodeKeyMaterial, errors.New("no PEM block found"))
	}
	if block.Type != pemTypeEncryptedPrivateKey {
		return nil, newError(ErrCodeKeyMaterial, errors.Newf("unexpected PEM block type %q", block.Type))
	}
	key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, passphrase)
	if err != nil {
		// pkcs8 errors describe the failing stage (cipher, KDF, padding) only.
		return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "decrypt private key"))
	}
	if err := key.Validate(); err != nil {
		wipePrivateKey(key)
		return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "validate private key"))
	}
	return key, nil
}

// ParsePublicKeyPEM parses a PEM-armored SubjectPublicKeyInfo ("PUBLIC KEY")
// or PKCS#1 ("RSA PUBLIC KEY") block into an RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, newError(ErrCodeKeyMaterial, errors.New("no PEM block found"))
	}
	switch block.Type {
	case pemTypePublicKey:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "parse public key"))
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, newError(ErrCodeKeyMaterial, errors.Newf("public key is %T, not RSA", parsed))
		}
		return pub, nil
	case pemTypeRSAPublicKey:
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "parse public key"))
		}
		return pub, nil
	default:
		return nil, newError(ErrCodeKeyMaterial, errors.Newf("unexpected PEM block type %q", block.Type))
	}
}

// PublicKeySet returns a JWKS holding pub, tagged for RS256 signature use and
// identified by its SHA-256 thumbprint.
func PublicKeySet(pub *rsa.PublicKey) (jwk.Set, error) {
	if pub == nil {
		return nil, newError(ErrCodeConfig, errMissingPublicKey)
	}
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "public key jwk"))
	}
	if err := key.Set(jwk.AlgorithmKey, Algorithm); err != nil {
		return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "set alg"))
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "set use"))
	}
	if err := jwk.AssignKeyID(key); err != nil {
		return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "assign kid"))
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, newError(ErrCodeKeyMaterial, errors.Wrap(err, "add key"))
	}
	return set, nil
}

// keyCache holds a decrypted private key once the first decryption succeeds.
// Failures are not remembered so a later call may retry.
type keyCache struct {
	mu  sync.Mutex
	key *rsa.PrivateKey
}

func (c *keyCache) get(load func() (*rsa.PrivateKey, error)) (*rsa.PrivateKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != nil {
		return c.key, nil
	}
	key, err := load()
	if err != nil {
		return nil, err
	}
	c.key = key
	return key, nil
}

// wipePrivateKey overwrites the private exponent, primes and precomputed
// values in place. Copies held inside the standard library are out of reach.
func wipePrivateKey(key *rsa.PrivateKey) {
	if key == nil {
		return
	}
	wipeInt(key.D)
	for _, p := range key.Primes {
		wipeInt(p)
	}
	wipeInt(key.Precomputed.Dp)
	wipeInt(key.Precomputed.Dq)
	wipeInt(key.Precomputed.Qinv)
}

func wipeInt(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	n.SetInt64(0)
}
