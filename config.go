package jwthelper

import (
	"crypto/rsa"
	"math"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Algorithm is the only signature algorithm issued and accepted.
const Algorithm = jwa.RS256

// maxSeconds bounds expiry and leeway so they fit a time.Duration.
const maxSeconds = uint64(math.MaxInt64 / int64(time.Second))

// Builder collects optional Helper configuration. Any subset of fields may be
// set; missing fields are reported by the operation that needs them.
type Builder struct {
	passphrase    []byte
	hasPassphrase bool
	encryptedPEM  string
	publicKey     *rsa.PublicKey
	expirySeconds *uint64
	leewaySeconds *uint64
	clock         jwt.Clock
	cacheKey      bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PrivateKeyPassphrase sets the passphrase protecting the encrypted private key.
// The slice is copied.
func (b *Builder) PrivateKeyPassphrase(passphrase []byte) *Builder {
	b.passphrase = append([]byte(nil), passphrase...)
	b.hasPassphrase = true
	return b
}

// ExpirySeconds sets how long issued tokens stay valid.
func (b *Builder) ExpirySeconds(seconds uint64) *Builder {
	b.expirySeconds = &seconds
	return b
}

// LeewaySeconds sets the clock-skew tolerance applied during verification.
func (b *Builder) LeewaySeconds(seconds uint64) *Builder {
	b.leewaySeconds = &seconds
	return b
}

// EncryptedPrivateKeyPEM sets the PEM-armored encrypted PKCS#8 private key.
func (b *Builder) EncryptedPrivateKeyPEM(pem string) *Builder {
	b.encryptedPEM = pem
	return b
}

// PublicKey sets the key used to verify token signatures.
func (b *Builder) PublicKey(key *rsa.PublicKey) *Builder {
	b.publicKey = key
	return b
}

// Clock overrides the time source. Defaults to the wall clock.
func (b *Builder) Clock(clock jwt.Clock) *Builder {
	b.clock = clock
	return b
}

// CacheDecryptedKey keeps the decrypted private key in memory after the
// first successful Issue instead of decrypting on every call.
func (b *Builder) CacheDecryptedKey(enabled bool) *Builder {
	b.cacheKey = enabled
	return b
}

// Build returns an immutable Helper. It never fails; see Issue and Verify.
func (b *Builder) Build() *Helper {
	h := &Helper{
		passphrase:    append([]byte(nil), b.passphrase...),
		hasPassphrase: b.hasPassphrase,
		encryptedPEM:  b.encryptedPEM,
		publicKey:     b.publicKey,
		clock:         b.clock,
	}
	if b.expirySeconds != nil {
		h.expiry = time.Duration(min(*b.expirySeconds, maxSeconds)) * time.Second
		h.hasExpiry = true
	}
	if b.leewaySeconds != nil {
		h.leeway = int64(min(*b.leewaySeconds, maxSeconds))
		h.hasLeeway = true
	}
	if h.clock == nil {
		h.clock = jwt.ClockFunc(time.Now)
	}
	if b.cacheKey {
		h.keyCache = &keyCache{}
	}
	return h
}

// issuerReady reports the first missing issuance field.
func (h *Helper) issuerReady() error {
	switch {
	case !h.hasPassphrase:
		return newError(ErrCodeConfig, errMissingPassphrase)
	case h.encryptedPEM == "":
		return newError(ErrCodeConfig, errMissingPrivateKey)
	case !h.hasExpiry:
		return newError(ErrCodeConfig, errMissingExpiry)
	}
	return nil
}

// verifierReady reports the first missing verification field.
func (h *Helper) verifierReady() error {
	switch {
	case h.publicKey == nil:
		return newError(ErrCodeConfig, errMissingPublicKey)
	case !h.hasLeeway:
		return newError(ErrCodeConfig, errMissingLeeway)
	}
	return nil
}
