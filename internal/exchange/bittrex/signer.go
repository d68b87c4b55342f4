package bittrex

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"time"
)

// Signer authenticates Bittrex v1.1 account/market calls: the full request
// URI is HMAC-SHA512 signed with the API secret and sent in the apisign
// header. Keys are held as []byte so they can be wiped.
type Signer struct {
	key    []byte
	secret []byte
}

// NewSigner creates a signer from the configured credentials.
func NewSigner(key, secret string) *Signer {
	return &Signer{key: []byte(key), secret: []byte(secret)}
}

// Key returns the API key for URL building.
func (s *Signer) Key() string {
	return string(s.key)
}

// Sign computes the hex HMAC-SHA512 of the full request URI.
func (s *Signer) Sign(uri string) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}

// Nonce returns a fresh unix-seconds nonce.
func (s *Signer) Nonce() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// Wipe clears the credentials from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.key {
		s.key[i] = 0
	}
	for i := range s.secret {
		s.secret[i] = 0
	}
}
