package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/store"
)

var (
	// ErrMalformed means the token string could not be parsed.
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidSignature means the HMAC did not verify.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired means the validity window has passed.
	ErrExpired = errors.New("token expired")
	// ErrAlreadyConsumed means a single-use token was already spent.
	ErrAlreadyConsumed = errors.New("token already consumed")
	// ErrUnknownToken means no record exists for the token ID.
	ErrUnknownToken = errors.New("unknown token")
)

// tokenPrefix versions the token wire format.
const tokenPrefix = "QT1"

// body is the signed portion of a token. Field names are part of the
// wire format.
type body struct {
	TokenID   string          `json:"tid"`
	Tag       string          `json:"tag"`
	Body      json.RawMessage `json:"body"`
	IssuedAt  int64           `json:"iat"`
	TTL       int64           `json:"ttl"`
	SingleUse bool            `json:"su,omitempty"`
}

// Claims is the verified content of a decoded token.
type Claims struct {
	TokenID   string
	Payload   Payload
	IssuedAt  time.Time
	TTL       time.Duration
	SingleUse bool
}

// ExpiresAt returns the end of the token's validity window.
func (c *Claims) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// Codec signs, verifies, and consumes tokens. The signing key is derived
// once from the process-wide secret; the secret itself is never stored.
type Codec struct {
	key    []byte
	tokens *store.TokenStore
}

// NewCodec derives the signing key from the master secret with
// HKDF-SHA256 and binds the codec to the token store.
func NewCodec(secret []byte, tokens *store.TokenStore) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty signing secret")
	}
	h := hkdf.New(sha256.New, secret, nil, []byte("qrtrail-token-sign-v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Codec{key: key, tokens: tokens}, nil
}

func (c *Codec) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Encode issues a token for the given payload and persists its record.
// The returned string is the QR's carried content:
// QT1.<body-b64url>.<mac-b64url>
func (c *Codec) Encode(payload Payload, ttl time.Duration, singleUse bool, codeID *string) (string, error) {
	rawBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	issuedAt := time.Now().UTC().Truncate(time.Second)
	b := body{
		TokenID:   uuid.NewString(),
		Tag:       payload.Tag(),
		Body:      rawBody,
		IssuedAt:  issuedAt.Unix(),
		TTL:       int64(ttl.Seconds()),
		SingleUse: singleUse,
	}
	signed, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal token body: %w", err)
	}
	mac := c.sign(signed)

	rec := &model.TokenRecord{
		ID:         b.TokenID,
		CodeID:     codeID,
		PayloadTag: b.Tag,
		Body:       string(rawBody),
		IssuedAt:   issuedAt,
		TTLSeconds: b.TTL,
		SingleUse:  singleUse,
		Signature:  base64.RawURLEncoding.EncodeToString(mac),
	}
	if err := c.tokens.Create(rec); err != nil {
		return "", err
	}

	return strings.Join([]string{
		tokenPrefix,
		base64.RawURLEncoding.EncodeToString(signed),
		base64.RawURLEncoding.EncodeToString(mac),
	}, "."), nil
}

// Decode verifies a token string against the signing key and the clock.
// The MAC comparison is constant-time, and it happens before any of the
// claimed bytes are trusted.
func (c *Codec) Decode(tokenString string, now time.Time) (*Claims, error) {
	fields := strings.Split(tokenString, ".")
	if len(fields) != 3 || fields[0] != tokenPrefix {
		return nil, ErrMalformed
	}
	signed, err := base64.RawURLEncoding.DecodeString(fields[1])
	if err != nil {
		return nil, fmt.Errorf("token body: %w", ErrMalformed)
	}
	mac, err := base64.RawURLEncoding.DecodeString(fields[2])
	if err != nil {
		return nil, fmt.Errorf("token signature: %w", ErrMalformed)
	}

	if !hmac.Equal(mac, c.sign(signed)) {
		return nil, ErrInvalidSignature
	}

	var b body
	if err := json.Unmarshal(signed, &b); err != nil {
		return nil, fmt.Errorf("unmarshal token body: %w", ErrMalformed)
	}
	if b.TokenID == "" || b.TTL < 0 {
		return nil, ErrMalformed
	}

	issuedAt := time.Unix(b.IssuedAt, 0).UTC()
	if now.After(issuedAt.Add(time.Duration(b.TTL) * time.Second)) {
		return nil, ErrExpired
	}

	payload, err := ParsePayload(b.Tag, b.Body)
	if err != nil {
		return nil, err
	}

	return &Claims{
		TokenID:   b.TokenID,
		Payload:   payload,
		IssuedAt:  issuedAt,
		TTL:       time.Duration(b.TTL) * time.Second,
		SingleUse: b.SingleUse,
	}, nil
}

// Consume spends a single-use token. Exactly one concurrent caller wins;
// the rest get ErrAlreadyConsumed. Consuming a reusable token is a no-op.
func (c *Codec) Consume(tokenID string) error {
	rec, err := c.tokens.GetByID(tokenID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrUnknownToken
	}
	if !rec.SingleUse {
		return nil
	}

	consumed, err := c.tokens.Consume(tokenID)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrAlreadyConsumed
	}
	return nil
}

// Redeem is the scan-path combination of Decode and Consume: verify
// first, then spend if the token is single-use.
func (c *Codec) Redeem(tokenString string, now time.Time) (*Claims, error) {
	claims, err := c.Decode(tokenString, now)
	if err != nil {
		return nil, err
	}
	if claims.SingleUse {
		if err := c.Consume(claims.TokenID); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// IsToken reports whether a carried content string claims to be a token.
func IsToken(s string) bool {
	return strings.HasPrefix(s, tokenPrefix+".")
}
