package onshape

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

const nonceLength = 25

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newNonce generates a random alphanumeric nonce for request authentication.
func newNonce() (string, error) {
	var b strings.Builder
	b.Grow(nonceLength)
	max := big.NewInt(int64(len(nonceAlphabet)))
	for i := 0; i < nonceLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating nonce: %w", err)
		}
		b.WriteByte(nonceAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// sign computes the request signature the vendor verifies. The canonical
// string is method, nonce, date, content type, URL path and raw query, each
// newline-terminated and lowercased as a whole, keyed-hashed with HMAC-SHA256
// under the secret key and base64-encoded.
func sign(secretKey, method, nonce, date, contentType, path, rawQuery string) string {
	canonical := strings.ToLower(
		method + "\n" +
			nonce + "\n" +
			date + "\n" +
			contentType + "\n" +
			path + "\n" +
			rawQuery + "\n",
	)

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// authorizationHeader renders the vendor's Authorization header value.
func authorizationHeader(accessKey, signature string) string {
	return fmt.Sprintf("On %s:HmacSHA256:%s", accessKey, signature)
}
