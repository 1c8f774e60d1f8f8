package encryption

import (
	"errors"
	"testing"
)

var testParams = KDFParams{Salt: []byte("test-salt"), Iterations: 1, MemoryKiB: 1024, Parallel: 1}

func TestAESGCM_RoundTrip(t *testing.T) {
	c, err := NewAESGCM("secret", testParams)
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}

	for _, plain := range []string{"", "hello", "ünïcødé 👋"} {
		ct, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plain, err)
		}
		if plain != "" && ct == plain {
			t.Errorf("ciphertext equals plaintext")
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != plain {
			t.Errorf("Decrypt() = %q, want %q", got, plain)
		}
	}
}

func TestAESGCM_SharedSecret(t *testing.T) {
	a, _ := NewAESGCM("secret", testParams)
	b, _ := NewAESGCM("secret", testParams)

	ct, _ := a.Encrypt("hi")
	if got, err := b.Decrypt(ct); err != nil || got != "hi" {
		t.Fatalf("Decrypt() = %q, %v", got, err)
	}
}

func TestAESGCM_DecryptFailures(t *testing.T) {
	c, _ := NewAESGCM("secret", testParams)
	other, _ := NewAESGCM("other", testParams)
	ct, _ := other.Encrypt("hi")

	tests := []struct {
		name string
		in   string
	}{
		{"not base64", "%%%"},
		{"too short", "AAAA"},
		{"wrong key", ct},
		{"legacy plaintext", "hello there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.in)
			if !errors.Is(err, ErrDecrypt) {
				t.Errorf("Decrypt() error = %v, want ErrDecrypt", err)
			}
		})
	}
}

func TestDecryptOrMask(t *testing.T) {
	c, _ := NewAESGCM("secret", testParams)

	got, err := DecryptOrMask(c, "garbage")
	if err == nil || got != MaskedPlaceholder {
		t.Errorf("DecryptOrMask() = %q, %v", got, err)
	}
}

func TestNewAESGCM_EmptySecret(t *testing.T) {
	if _, err := NewAESGCM("", testParams); err == nil {
		t.Error("expected error for empty secret")
	}
}
