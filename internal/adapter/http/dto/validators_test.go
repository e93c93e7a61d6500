package dto

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	RegisterValidators(v)
	return v
}

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := RegisterRequest{
		Email:    "  alice@example.com  ",
		FullName: " Alice Doe ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "alice@example.com", req.Email)
	assert.Equal(t, "Alice Doe", req.FullName)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := CreateKeyRequest{Name: "bot <script>alert('x')</script>"}
	SanitizeStruct(&req)

	assert.Contains(t, req.Name, "&lt;script&gt;")
	assert.NotContains(t, req.Name, "<script>")
}

func TestSanitizeStruct_SkipsPasswords(t *testing.T) {
	req := LoginRequest{Email: " a@b.co ", Password: "  p<ss>word  "}
	SanitizeStruct(&req)

	assert.Equal(t, "a@b.co", req.Email)
	assert.Equal(t, "  p<ss>word  ", req.Password)
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	type withPointer struct {
		Note  *string
		Empty *string
	}
	note := "  <b>hi</b>  "
	req := withPointer{Note: &note}
	SanitizeStruct(&req)

	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", *req.Note)
	assert.Nil(t, req.Empty)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID(t *testing.T) {
	valid := []string{"TXN-0123456789ABCDEF", "retry_1", "a.b.c"}
	invalid := []string{"ref 001", "ref<001>", "ref;DROP", "", "ref\n001"}

	for _, tc := range valid {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
	for _, tc := range invalid {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %q", tc)
	}
}

func TestCreateKeyRequest_Validation(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name    string
		req     CreateKeyRequest
		wantErr bool
	}{
		{"valid", CreateKeyRequest{Name: "ci", Permissions: []string{"deposit", "read"}, Expiry: "1D"}, false},
		{"all permissions", CreateKeyRequest{Name: "ci", Permissions: []string{"deposit", "transfer", "read"}, Expiry: "1Y"}, false},
		{"unknown permission", CreateKeyRequest{Name: "ci", Permissions: []string{"withdraw"}, Expiry: "1D"}, true},
		{"duplicate permission", CreateKeyRequest{Name: "ci", Permissions: []string{"read", "read"}, Expiry: "1D"}, true},
		{"empty permissions", CreateKeyRequest{Name: "ci", Permissions: []string{}, Expiry: "1D"}, true},
		{"unknown expiry", CreateKeyRequest{Name: "ci", Permissions: []string{"read"}, Expiry: "2W"}, true},
		{"lowercase expiry", CreateKeyRequest{Name: "ci", Permissions: []string{"read"}, Expiry: "1d"}, true},
		{"missing name", CreateKeyRequest{Permissions: []string{"read"}, Expiry: "1H"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransferRequest_WalletNumber(t *testing.T) {
	v := newValidator()

	assert.NoError(t, v.Struct(TransferRequest{WalletNumber: "4000000000001", Amount: 100}))
	assert.Error(t, v.Struct(TransferRequest{WalletNumber: "400000000000", Amount: 100}))
	assert.Error(t, v.Struct(TransferRequest{WalletNumber: "40000000000AB", Amount: 100}))
	assert.Error(t, v.Struct(TransferRequest{WalletNumber: "4000000000001", Amount: 0}))
}

func TestRolloverKeyRequest_Validation(t *testing.T) {
	v := newValidator()

	assert.NoError(t, v.Struct(RolloverKeyRequest{ExpiredKeyID: "2b1f0e8a-6c4d-4e7b-9a51-3f2d8c9e0a11", Expiry: "1M"}))
	assert.Error(t, v.Struct(RolloverKeyRequest{ExpiredKeyID: "not-a-uuid", Expiry: "1M"}))
}

func TestFormatKobo(t *testing.T) {
	tests := []struct {
		kobo int64
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{150050, "1500.50"},
		{100_000_000, "1000000.00"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatKobo(tt.kobo))
	}
}
