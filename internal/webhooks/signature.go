package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix names the algorithm in X-Signature so receivers can
// tell it apart from future schemes.
const signaturePrefix = "sha256="

// SignHMAC returns the X-Signature value for a route webhook body:
// "sha256=" followed by the lowercase hex HMAC under the subscription secret.
func SignHMAC(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(routeMAC(secret, body))
}

// VerifyHMAC reports whether provided signs body under secret. A bare hex
// digest without the prefix is accepted too.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	digest, err := hex.DecodeString(strings.TrimPrefix(provided, signaturePrefix))
	if err != nil || len(digest) != sha256.Size {
		return false
	}
	return hmac.Equal(routeMAC(secret, body), digest)
}

func routeMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
