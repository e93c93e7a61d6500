package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePaystackBody = `{"event":"charge.success","data":{"id":302961,"reference":"TXN-0123456789ABCDEF","amount":500000,"status":"success"}}`

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	secretKey := "sk_test_paystack"

	signature := svc.Sign(secretKey, []byte(samplePaystackBody))

	assert.Regexp(t, `^[0-9a-f]{128}$`, signature, "signature should be 128-char lowercase hex (SHA-512)")
	assert.True(t, svc.Verify(secretKey, []byte(samplePaystackBody), signature))
}

func TestHMACSignatureService_VerifyAcceptsUppercaseHex(t *testing.T) {
	svc := NewHMACSignatureService()

	signature := svc.Sign("key", []byte("payload"))
	assert.True(t, svc.Verify("key", []byte("payload"), strings.ToUpper(signature)))
}

func TestHMACSignatureService_VerifyFails_WrongKey(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte(samplePaystackBody)

	signature := svc.Sign("correct-key", payload)
	assert.False(t, svc.Verify("wrong-key", payload, signature))
}

func TestHMACSignatureService_VerifyFails_TamperedBody(t *testing.T) {
	svc := NewHMACSignatureService()
	secretKey := "my-key"

	signature := svc.Sign(secretKey, []byte(samplePaystackBody))
	tampered := strings.Replace(samplePaystackBody, "500000", "900000", 1)
	assert.False(t, svc.Verify(secretKey, []byte(tampered), signature))
}

func TestHMACSignatureService_VerifyFails_EmptyOrGarbage(t *testing.T) {
	svc := NewHMACSignatureService()
	assert.False(t, svc.Verify("key", []byte("payload"), ""))
	assert.False(t, svc.Verify("key", []byte("payload"), "invalidsignature"))
}

func TestHMACSignatureService_DeterministicSign(t *testing.T) {
	svc := NewHMACSignatureService()

	sig1 := svc.Sign("key", []byte("data"))
	sig2 := svc.Sign("key", []byte("data"))

	assert.Equal(t, sig1, sig2, "same key+payload should produce same signature")
}
