package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"strconv"
)

// Sign computes the API-Sign header value for a private REST call:
// base64(HMAC-SHA512(secret, path || SHA256(nonce || body))).
func Sign(secret []byte, path string, nonce uint64, body []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("sign: empty secret")
	}
	if path == "" {
		return "", errors.New("sign: empty path")
	}

	inner := sha256.New()
	inner.Write([]byte(strconv.FormatUint(nonce, 10)))
	inner.Write(body)

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(inner.Sum(nil))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
