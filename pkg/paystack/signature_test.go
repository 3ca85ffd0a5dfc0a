package paystack

import "testing"

func TestVerifySignature(t *testing.T) {
	secret := "sk_test_signature"
	body := []byte(`{"event":"charge.success","data":{"reference":"ps_ref_1"}}`)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{
			name:      "valid signature verifies",
			secret:    secret,
			body:      body,
			signature: ComputeSignature(secret, body),
			want:      true,
		},
		{
			name:      "empty signature fails",
			secret:    secret,
			body:      body,
			signature: "",
			want:      false,
		},
		{
			name:      "tampered body fails",
			secret:    secret,
			body:      []byte(`{"event":"charge.success","data":{"reference":"ps_ref_2"}}`),
			signature: ComputeSignature(secret, body),
			want:      false,
		},
		{
			name:      "wrong secret fails",
			secret:    "sk_test_other",
			body:      body,
			signature: ComputeSignature(secret, body),
			want:      false,
		},
		{
			name:      "garbage signature fails",
			secret:    secret,
			body:      body,
			signature: "deadbeef",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Fatalf("expected verified=%t, got %t", tt.want, got)
			}
		})
	}
}

func TestComputeSignature_IsDeterministicHex(t *testing.T) {
	secret := "sk_test_signature"
	body := []byte("payload")

	first := ComputeSignature(secret, body)
	second := ComputeSignature(secret, body)
	if first != second {
		t.Fatalf("expected a deterministic digest, got %q and %q", first, second)
	}
	// HMAC-SHA512 hex digest is 128 characters.
	if len(first) != 128 {
		t.Fatalf("expected a 128 character hex digest, got %d", len(first))
	}
}
