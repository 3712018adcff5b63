package sale

import (
	"bytes"
	"testing"

	"salechain/crypto"
)

func TestKeyAuthorizerAcceptsRegisteredSigner(t *testing.T) {
	signer, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	authorizer := NewKeyAuthorizer(signer.PubKey().Address())
	buyer := [20]byte{0x01}
	sig, err := signer.Sign(WhitelistDigest(buyer))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := authorizer.Verify(buyer, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// The same assertion keeps working: whitelist membership is standing,
	// not one-shot.
	if err := authorizer.Verify(buyer, sig); err != nil {
		t.Fatalf("repeat verify: %v", err)
	}
}

func TestKeyAuthorizerRejections(t *testing.T) {
	signer, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	authorizer := NewKeyAuthorizer(signer.PubKey().Address())
	buyer := [20]byte{0x02}

	forged, err := other.Sign(WhitelistDigest(buyer))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := authorizer.Verify(buyer, forged); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for wrong signer, got %v", err)
	}

	// An assertion for one buyer is not transferable to another.
	legit, err := signer.Sign(WhitelistDigest(buyer))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := authorizer.Verify([20]byte{0x03}, legit); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for replayed assertion, got %v", err)
	}

	if err := authorizer.Verify(buyer, legit[:64]); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for truncated assertion, got %v", err)
	}
	if err := authorizer.Verify(buyer, nil); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for missing assertion, got %v", err)
	}

	corrupted := append([]byte(nil), legit...)
	corrupted[5] ^= 0xff
	if err := authorizer.Verify(buyer, corrupted); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for corrupted assertion, got %v", err)
	}
}

func TestWhitelistMessageBindsDomainAndBuyer(t *testing.T) {
	buyer := [20]byte{0x04}
	msg := WhitelistMessage(buyer)
	if !bytes.HasPrefix([]byte(msg), []byte(WhitelistDomainV1+"|buyer=")) {
		t.Fatalf("unexpected message layout: %q", msg)
	}
	if msg == WhitelistMessage([20]byte{0x05}) {
		t.Fatalf("messages for different buyers must differ")
	}
	if len(WhitelistDigest(buyer)) != 32 {
		t.Fatalf("digest must be 32 bytes")
	}
}

type staticValidator struct {
	accept bool
	err    error
	digest [32]byte
}

func (v *staticValidator) IsValidSignature(digest [32]byte, assertion []byte) (bool, error) {
	v.digest = digest
	return v.accept, v.err
}

func TestDelegatedAuthorizer(t *testing.T) {
	buyer := [20]byte{0x06}

	accepting := &staticValidator{accept: true}
	if err := NewDelegatedAuthorizer(accepting).Verify(buyer, []byte("opaque")); err != nil {
		t.Fatalf("verify: %v", err)
	}
	var wantDigest [32]byte
	copy(wantDigest[:], WhitelistDigest(buyer))
	if accepting.digest != wantDigest {
		t.Fatalf("validator saw wrong digest")
	}

	rejecting := &staticValidator{accept: false}
	if err := NewDelegatedAuthorizer(rejecting).Verify(buyer, []byte("opaque")); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	failing := &staticValidator{accept: true, err: ErrInvalidSignature}
	if err := NewDelegatedAuthorizer(failing).Verify(buyer, []byte("opaque")); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature on validator error, got %v", err)
	}
	if err := NewDelegatedAuthorizer(nil).Verify(buyer, []byte("opaque")); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for nil validator, got %v", err)
	}
}
