package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypeHash = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
	versionHash    = crypto.Keccak256Hash([]byte("1"))
)

// Signature is a secp256k1 signature in the (v, r, s) form, with v in {27, 28}.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// DomainSeparator computes the EIP-712 domain of a token named name deployed at
// verifyingContract.
func DomainSeparator(name string, chainID uint64, verifyingContract common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(name)),
		versionHash.Bytes(),
		word(uint256.NewInt(chainID)),
		common.LeftPadBytes(verifyingContract.Bytes(), 32),
	)
}

// PermitDigest returns the hash a token owner signs to approve spender for value.
func PermitDigest(domain common.Hash, owner, spender common.Address, value *uint256.Int, nonce, deadline uint64) common.Hash {
	structHash := crypto.Keccak256(
		permitTypeHash.Bytes(),
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(spender.Bytes(), 32),
		word(value),
		word(uint256.NewInt(nonce)),
		word(uint256.NewInt(deadline)),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), structHash)
}

// SignPermit signs a permit for the current nonce of the key's account on token.
func SignPermit(key *ecdsa.PrivateKey, token PermitToken, spender common.Address, value *uint256.Int, deadline uint64) (Signature, error) {
	owner := crypto.PubkeyToAddress(key.PublicKey)
	digest := PermitDigest(token.DomainSeparator(), owner, spender, value, token.Nonces(owner), deadline)
	raw, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign permit: %w", err)
	}
	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64] + 27
	return sig, nil
}

// Permit sets the allowance of spender over owner's tokens from a signature by owner.
// The deadline is compared against the block timestamp.
func (t *ERC20) Permit(ctx context.Context, owner, spender common.Address, value *uint256.Int, deadline uint64, sig Signature) error {
	return t.chain.Transact(ctx, func(ctx context.Context) error {
		if deadline < t.chain.Timestamp() {
			return fmt.Errorf("%w: deadline %d, now %d", ErrPermitExpired, deadline, t.chain.Timestamp())
		}
		nonce := t.Nonces(owner)
		digest := PermitDigest(t.domain, owner, spender, value, nonce, deadline)
		signer, err := recoverSigner(digest, sig)
		if err != nil {
			return err
		}
		if signer == (common.Address{}) || signer != owner {
			return fmt.Errorf("%w: recovered %s, owner %s", ErrInvalidSignature, signer.Hex(), owner.Hex())
		}
		t.setNonce(ctx, owner, nonce+1)
		return t.approve(ctx, owner, spender, value)
	})
}

func recoverSigner(digest common.Hash, sig Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("%w: v = %d", ErrInvalidSignature, sig.V)
	}
	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V - 27
	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func word(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}
