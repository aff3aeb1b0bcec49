package community

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"steamcommunity/internal/steamid"
	"strconv"
)

func encryptPassword(modulus string, exponent string, password string) (string, error) {
	n, ok := new(big.Int).SetString(modulus, 16)
	if !ok {
		return "", errors.New("can not parse rsa modulus")
	}
	e, err := strconv.ParseInt(exponent, 16, 32)
	if err != nil {
		return "", fmt.Errorf("parse rsa exponent: %w", err)
	}
	publicKey := rsa.PublicKey{
		N: n,
		E: int(e),
	}
	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, &publicKey, []byte(password))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// DeviceID derives the android device id the mobile app reports for an
// account, which the confirmation endpoints expect as "p".
func DeviceID(id steamid.SteamID) string {
	sum := sha1.Sum([]byte(id.String()))
	h := hex.EncodeToString(sum[:])
	return fmt.Sprintf("android:%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}
