package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PurchaseToken grants a buyer access to one purchase.
type PurchaseToken struct {
	PurchaseID string `json:"sub"`
	Exp        int64  `json:"exp"`
	Iat        int64  `json:"iat"`
}

// PurchaseTokenManager issues HMAC-SHA256 purchase tokens.
// Format: base64(payload).base64(signature)
type PurchaseTokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewPurchaseTokenManager creates a purchase token manager.
func NewPurchaseTokenManager(secret string, ttl time.Duration) *PurchaseTokenManager {
	return &PurchaseTokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for purchaseID.
func (m *PurchaseTokenManager) Issue(purchaseID string) (string, error) {
	now := m.now()
	payload, err := json.Marshal(PurchaseToken{
		PurchaseID: purchaseID,
		Exp:        now.Add(m.ttl).Unix(),
		Iat:        now.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal purchase token: %w", err)
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	return payloadB64 + "." + base64.RawURLEncoding.EncodeToString(m.sign(payloadB64)), nil
}

// Verify checks the signature and expiry of a token.
func (m *PurchaseTokenManager) Verify(token string) (*PurchaseToken, error) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 {
		return nil, fmt.Errorf("invalid purchase token format")
	}
	payloadB64, sigB64 := token[:i], token[i+1:]

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if !hmac.Equal(m.sign(payloadB64), sig) {
		return nil, fmt.Errorf("invalid signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var tok PurchaseToken
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	if m.now().Unix() > tok.Exp {
		return nil, fmt.Errorf("token expired")
	}
	return &tok, nil
}

func (m *PurchaseTokenManager) sign(data string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
