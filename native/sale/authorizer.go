package sale

import (
	"bytes"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"salechain/crypto"
)

// WhitelistDomainV1 is the domain separator bound into every whitelist
// assertion. Assertions carry only the buyer identity: one valid signature
// authorizes all future purchases by that buyer while the verifying key is
// unchanged.
const WhitelistDomainV1 = "SALECHAIN_WHITELIST_V1"

// WhitelistMessage renders the canonical signed payload for a buyer.
func WhitelistMessage(buyer [20]byte) string {
	builder := strings.Builder{}
	builder.WriteString(WhitelistDomainV1)
	builder.WriteString("|buyer=")
	builder.WriteString(crypto.MustNewAddress(buyer[:]).String())
	return builder.String()
}

// WhitelistDigest computes the keccak256 digest of the canonical payload.
func WhitelistDigest(buyer [20]byte) []byte {
	return ethcrypto.Keccak256([]byte(WhitelistMessage(buyer)))
}

// Authorizer validates a signed assertion that the buyer is whitelisted.
// Verification never mutates state.
type Authorizer interface {
	Verify(buyer [20]byte, assertion []byte) error
}

// KeyAuthorizer verifies assertions against a single registered secp256k1
// signer address.
type KeyAuthorizer struct {
	signer [20]byte
}

// NewKeyAuthorizer binds the authorizer to the verifying key's address.
func NewKeyAuthorizer(signer crypto.Address) *KeyAuthorizer {
	return &KeyAuthorizer{signer: signer.Raw()}
}

// Verify recovers the assertion signer and compares it to the registered
// address.
func (a *KeyAuthorizer) Verify(buyer [20]byte, assertion []byte) error {
	if a == nil || a.signer == ([20]byte{}) {
		return ErrInvalidSignature
	}
	if len(assertion) != 65 {
		return ErrInvalidSignature
	}
	recovered, err := crypto.RecoverAddress(WhitelistDigest(buyer), assertion)
	if err != nil {
		return ErrInvalidSignature
	}
	if !bytes.Equal(recovered.Bytes(), a.signer[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// SignatureValidator is implemented by programmable accounts whose
// "signature" is validated by executing their own verification logic rather
// than by key recovery.
type SignatureValidator interface {
	IsValidSignature(digest [32]byte, assertion []byte) (bool, error)
}

// DelegatedAuthorizer defers assertion checks to a registered programmable
// validator.
type DelegatedAuthorizer struct {
	validator SignatureValidator
}

// NewDelegatedAuthorizer wraps the supplied validator.
func NewDelegatedAuthorizer(validator SignatureValidator) *DelegatedAuthorizer {
	return &DelegatedAuthorizer{validator: validator}
}

// Verify executes the delegated validation logic over the canonical digest.
func (a *DelegatedAuthorizer) Verify(buyer [20]byte, assertion []byte) error {
	if a == nil || a.validator == nil {
		return ErrInvalidSignature
	}
	var digest [32]byte
	copy(digest[:], WhitelistDigest(buyer))
	ok, err := a.validator.IsValidSignature(digest, assertion)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	return nil
}
