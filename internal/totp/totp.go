// Package totp generates the five character Steam Guard codes a mobile
// authenticator shows for login.
package totp

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	authenticator "github.com/bbqtd/go-steam-authenticator"
)

var ErrEmptySecret = errors.New("totp: empty shared secret")

// normalizeSecret returns the base64 form the authenticator expects. maFiles
// carry base64 already, some exports use a 40 character hex string and a few
// tools hand out the raw bytes.
func normalizeSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) == 40 {
		if raw, err := hex.DecodeString(secret); err == nil {
			return base64.StdEncoding.EncodeToString(raw), nil
		}
	}
	if _, err := base64.StdEncoding.DecodeString(secret); err == nil {
		return secret, nil
	}
	return base64.StdEncoding.EncodeToString([]byte(secret)), nil
}

// GenerateTotpCode returns the login code for sharedSecret at t.
func GenerateTotpCode(sharedSecret string, t time.Time) (string, error) {
	secret, err := normalizeSecret(sharedSecret)
	if err != nil {
		return "", err
	}
	return authenticator.GenerateAuthCode(secret, func() uint64 {
		return uint64(t.Unix())
	})
}
