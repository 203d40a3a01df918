// Package jwthelper issues and verifies RS256 bearer tokens signed with an
// encrypted PKCS#8 RSA key.
package jwthelper

import (
	"crypto/rsa"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var logger = xlog.NewPackageLogger("github.com/bionicotaku/lingo-utils-jwthelper", "jwthelper")

var (
	errMissingPassphrase = errors.New("private key passphrase is required for issuing tokens")
	errMissingPrivateKey = errors.New("encrypted private key is required for issuing tokens")
	errMissingExpiry     = errors.New("expiry is required for issuing tokens")
	errMissingPublicKey  = errors.New("public key is required for verifying tokens")
	errMissingLeeway     = errors.New("leeway is required for verifying tokens")
)

// Helper issues and verifies RS256 tokens carrying a subject.
//
// A Helper is immutable once built and safe for concurrent use.
type Helper struct {
	passphrase    []byte
	hasPassphrase bool
	encryptedPEM  string
	publicKey     *rsa.PublicKey
	expiry        time.Duration
	hasExpiry     bool
	leeway        int64
	hasLeeway     bool
	clock         jwt.Clock
	keyCache      *keyCache
}

// Issue returns a signed compact JWT for subject, valid from now until now
// plus the configured expiry.
func (h *Helper) Issue(subject string) (string, error) {
	token, _, err := h.issue(subject)
	return token, err
}

func (h *Helper) issue(subject string) (string, Claims, error) {
	if err := h.issuerReady(); err != nil {
		return "", Claims{}, err
	}

	claims := newClaims(subject, h.clock.Now(), h.expiry)
	tok, err := claims.token()
	if err != nil {
		return "", Claims{}, newError(ErrCodeSigning, errors.Wrap(err, "build claims"))
	}

	key, release, err := h.signingKey()
	if err != nil {
		return "", Claims{}, err
	}
	defer release()

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.TypeKey, "JWT"); err != nil {
		return "", Claims{}, newError(ErrCodeSigning, errors.Wrap(err, "set typ header"))
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(Algorithm, key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", Claims{}, newError(ErrCodeSigning, errors.Wrap(err, "sign token"))
	}

	logger.KV(xlog.DEBUG, "status", "issued", "exp", claims.ExpiresAt.Unix())
	return string(signed), claims, nil
}

// signingKey returns the decrypted private key and a release func that wipes
// it unless the key is cached.
func (h *Helper) signingKey() (*rsa.PrivateKey, func(), error) {
	load := func() (*rsa.PrivateKey, error) {
		return DecryptPrivateKeyPEM([]byte(h.encryptedPEM), h.passphrase)
	}
	if h.keyCache != nil {
		key, err := h.keyCache.get(load)
		if err != nil {
			return nil, nil, err
		}
		return key, func() {}, nil
	}
	key, err := load()
	if err != nil {
		return nil, nil, err
	}
	return key, func() { wipePrivateKey(key) }, nil
}
