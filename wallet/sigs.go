package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sign returns the 65 byte recoverable signature of keccak256(msg).
func Sign(privateKey string, msg []byte) ([]byte, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, err
	}
	return crypto.Sign(crypto.Keccak256(msg), key)
}

// Recover returns the address that produced sig over keccak256(msg).
func Recover(sig []byte, msg []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	// accept wallets that produce v as 27/28
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(msg), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sig over msg was produced by addr.
func Verify(addr string, sig []byte, msg []byte) (bool, error) {
	if !common.IsHexAddress(addr) {
		return false, fmt.Errorf("invalid address: %s", addr)
	}
	signer, err := Recover(sig, msg)
	if err != nil {
		return false, err
	}
	return signer == common.HexToAddress(addr), nil
}

// ToPublic converts private key to public key
func ToPublic(priv string) (string, *ecdsa.PublicKey, error) {
	if len(strings.TrimSpace(priv)) == 0 {
		return "", nil, fmt.Errorf("invalid private key")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(priv), "0x"))
	if err != nil {
		return "", nil, err
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", nil, fmt.Errorf("cannot assert type: publicKey is not of type *ecdsa.PublicKey")
	}

	publicK := hexutil.Encode(crypto.FromECDSAPub(publicKeyECDSA))[4:]
	return publicK, publicKeyECDSA, nil
}
