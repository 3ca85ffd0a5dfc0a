/**
 * @description
 * This file implements webhook signature verification for Paystack
 * notifications. Paystack signs the raw request body with HMAC-SHA512 using
 * the account's secret key and sends the hex digest in the
 * x-paystack-signature header. Verification always runs against the raw
 * bytes, never a re-serialized struct.
 */
package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "x-paystack-signature"

// ComputeSignature returns the hex HMAC-SHA512 digest of body under secretKey.
func ComputeSignature(secretKey string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the digest of body under
// secretKey, using a constant-time comparison.
func VerifySignature(secretKey string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := ComputeSignature(secretKey, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
