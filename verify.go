package jwthelper

import (
	"encoding/base64"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var segmentEncoding = base64.RawURLEncoding.Strict()

// joseHeader is the subset of the protected header inspected before the
// signature is checked.
type joseHeader struct {
	Algorithm string `json:"alg"`
}

// rawClaims keeps the required claims undecoded so their JSON types can be
// checked before jwx coerces them.
type rawClaims struct {
	Expiration json.RawMessage `json:"exp"`
	Subject    json.RawMessage `json:"sub"`
}

// Verify checks token's structure, algorithm, signature and expiry, in that
// order, and returns its subject.
func (h *Helper) Verify(token string) (string, error) {
	if err := h.verifierReady(); err != nil {
		return "", err
	}
	subject, err := h.verify(token)
	if err != nil {
		logger.KV(xlog.DEBUG, "status", "rejected", "code", CodeOf(err))
		return "", err
	}
	return subject, nil
}

func (h *Helper) verify(token string) (string, error) {
	header, _, err := splitCompact(token)
	if err != nil {
		return "", err
	}

	var hdr joseHeader
	if err := json.Unmarshal(header, &hdr); err != nil {
		return "", newError(ErrCodeMalformedToken, errors.New("header is not a JSON object"))
	}
	if hdr.Algorithm != Algorithm.String() {
		return "", newError(ErrCodeAlgorithmMismatch, errors.Newf("only %s is accepted", Algorithm))
	}

	verified, err := jws.Verify([]byte(token), jws.WithKey(Algorithm, h.publicKey))
	if err != nil {
		return "", newError(ErrCodeInvalidSignature, errors.New("signature does not match public key"))
	}

	var raw rawClaims
	if err := json.Unmarshal(verified, &raw); err != nil {
		return "", newError(ErrCodeMalformedToken, errors.New("payload is not a JSON object"))
	}
	if !isJSONNumber(raw.Expiration) {
		return "", newError(ErrCodeMalformedToken, errors.New("exp claim must be numeric"))
	}

	tok := jwt.New()
	if err := json.Unmarshal(verified, tok); err != nil {
		return "", newError(ErrCodeMalformedToken, errors.New("payload is not a valid claims set"))
	}
	now := h.clock.Now().Unix()
	if exp := tok.Expiration().Unix(); now > exp+h.leeway {
		return "", newError(ErrCodeExpired, errors.Newf("expired %ds ago", now-exp))
	}

	if !isJSONString(raw.Subject) {
		return "", newError(ErrCodeMalformedToken, errors.New("sub claim must be a string"))
	}
	logger.KV(xlog.TRACE, "status", "verified", "exp", tok.Expiration().Unix())
	return tok.Subject(), nil
}

// splitCompact validates the three-segment compact form and returns the
// decoded header and payload.
func splitCompact(token string) ([]byte, []byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, newError(ErrCodeMalformedToken, errors.Newf("expected 3 segments, got %d", len(parts)))
	}
	header, err := segmentEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, newError(ErrCodeMalformedToken, errors.New("header is not base64url"))
	}
	payload, err := segmentEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, newError(ErrCodeMalformedToken, errors.New("payload is not base64url"))
	}
	if _, err := segmentEncoding.DecodeString(parts[2]); err != nil {
		return nil, nil, newError(ErrCodeMalformedToken, errors.New("signature is not base64url"))
	}
	return header, payload, nil
}

// isJSONNumber reports whether raw holds a JSON number literal. Absent and
// null values are not numbers.
func isJSONNumber(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func isJSONString(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '"'
}
