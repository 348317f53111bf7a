package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Authenticator signs CLOB requests.
type Authenticator interface {
	AddAuthHeaders(req *http.Request, method, path, body string) error
}

// APIKeyAuthenticator uses the CLOB L2 API key, secret and passphrase bound
// to a wallet address.
type APIKeyAuthenticator struct {
	address    string
	apiKey     string
	apiSecret  string
	passphrase string
	now        func() time.Time
}

func NewAPIKeyAuthenticator(address, apiKey, apiSecret, passphrase string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		address:    address,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
		now:        time.Now,
	}
}

func (a *APIKeyAuthenticator) AddAuthHeaders(req *http.Request, method, path, body string) error {
	timestamp := strconv.FormatInt(a.now().Unix(), 10)
	signature, err := a.sign(timestamp, method, path, body)
	if err != nil {
		return err
	}

	req.Header.Set("POLY_ADDRESS", a.address)
	req.Header.Set("POLY_API_KEY", a.apiKey)
	req.Header.Set("POLY_PASSPHRASE", a.passphrase)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_SIGNATURE", signature)

	return nil
}

// sign returns the url-safe base64 HMAC-SHA256 of timestamp+method+path+body
// keyed with the decoded API secret.
func (a *APIKeyAuthenticator) sign(timestamp, method, path, body string) (string, error) {
	key, err := decodeSecret(a.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to decode api secret: %w", err)
	}
	message := timestamp + method + path + body
	return computeHMAC(message, key), nil
}

func computeHMAC(message string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// decodeSecret accepts url-safe or standard base64, padded or not.
func decodeSecret(secret string) ([]byte, error) {
	s := strings.TrimRight(secret, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}
