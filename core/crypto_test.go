package core

import "testing"

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	signer, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	msg := []byte("hello meshline")
	sig, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !signer.Verify(signer.PublicKey(), msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if !VerifyWithPublicKey(signer.PublicKey(), msg, sig) {
		t.Fatalf("expected package-level verify to succeed")
	}
	if signer.Verify(signer.PublicKey(), []byte("tampered"), sig) {
		t.Fatalf("expected signature over different message to fail")
	}
}

func TestX25519SharedSecretAgrees(t *testing.T) {
	a, err := NewX25519Agreement()
	if err != nil {
		t.Fatalf("new agreement a: %v", err)
	}
	b, err := NewX25519Agreement()
	if err != nil {
		t.Fatalf("new agreement b: %v", err)
	}
	secretA, err := a.SharedSecret(b.PublicValue())
	if err != nil {
		t.Fatalf("shared secret a: %v", err)
	}
	secretB, err := b.SharedSecret(a.PublicValue())
	if err != nil {
		t.Fatalf("shared secret b: %v", err)
	}
	if string(secretA) != string(secretB) {
		t.Fatalf("expected both sides to derive the same secret")
	}
}

func TestChaChaCipherRoundTrip(t *testing.T) {
	a, _ := NewX25519Agreement()
	b, _ := NewX25519Agreement()
	key, err := a.SharedSecret(b.PublicValue())
	if err != nil {
		t.Fatalf("shared secret: %v", err)
	}
	cipher := ChaChaCipher{}
	plaintext := []byte("the rain in spain")
	ciphertext, err := cipher.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := cipher.Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestChaChaCipherRejectsTamperedCiphertext(t *testing.T) {
	a, _ := NewX25519Agreement()
	b, _ := NewX25519Agreement()
	key, _ := a.SharedSecret(b.PublicValue())
	cipher := ChaChaCipher{}
	ciphertext, err := cipher.Encrypt(key, []byte("message"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xFF
	if _, err := cipher.Decrypt(key, ciphertext); err == nil {
		t.Fatalf("expected decrypt to fail on tampered ciphertext")
	}
}
