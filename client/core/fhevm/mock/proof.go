package mock

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/ctoken/client/core/fhevm"
)

// 输入证明格式:
//
//	[0]        句柄个数 n
//	[1]        签名者个数（固定为 1）
//	[2:2+32n]  句柄
//	[..+65]    输入验证者对 proofDigest 的签名
const proofHeaderLen = 2

// proofDigest 证明摘要：绑定句柄、用户、合约与链
func proofDigest(handles []common.Hash, user, contract common.Address, chainID uint64) common.Hash {
	var chain [32]byte
	binary.BigEndian.PutUint64(chain[24:], chainID)

	parts := make([][]byte, 0, len(handles)+3)
	for _, h := range handles {
		parts = append(parts, h.Bytes())
	}
	parts = append(parts, user.Bytes(), contract.Bytes(), chain[:])
	return crypto.Keccak256Hash(parts...)
}

// signProof 生成输入证明
func signProof(key *ecdsa.PrivateKey, handles []common.Hash, user, contract common.Address, chainID uint64) ([]byte, error) {
	if len(handles) == 0 || len(handles) > fhevm.MaxInputValues {
		return nil, fmt.Errorf("%w: %d handles", fhevm.ErrInputTooLarge, len(handles))
	}
	sig, err := crypto.Sign(proofDigest(handles, user, contract, chainID).Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign input proof: %w", err)
	}

	proof := make([]byte, 0, proofHeaderLen+len(handles)*common.HashLength+len(sig))
	proof = append(proof, byte(len(handles)), 1)
	for _, h := range handles {
		proof = append(proof, h.Bytes()...)
	}
	return append(proof, sig...), nil
}

// verifyProof 校验证明并返回其中的句柄
func verifyProof(verifier common.Address, proof []byte, user, contract common.Address, chainID uint64) ([]common.Hash, error) {
	if len(proof) < proofHeaderLen {
		return nil, fmt.Errorf("%w: proof too short", fhevm.ErrInvalidProof)
	}
	n := int(proof[0])
	if n == 0 || proof[1] != 1 {
		return nil, fmt.Errorf("%w: malformed header", fhevm.ErrInvalidProof)
	}
	want := proofHeaderLen + n*common.HashLength + crypto.SignatureLength
	if len(proof) != want {
		return nil, fmt.Errorf("%w: length %d, want %d", fhevm.ErrInvalidProof, len(proof), want)
	}

	handles := make([]common.Hash, n)
	off := proofHeaderLen
	for i := range handles {
		handles[i] = common.BytesToHash(proof[off : off+common.HashLength])
		off += common.HashLength
	}

	pub, err := crypto.SigToPub(proofDigest(handles, user, contract, chainID).Bytes(), proof[off:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fhevm.ErrInvalidProof, err)
	}
	if crypto.PubkeyToAddress(*pub) != verifier {
		return nil, fmt.Errorf("%w: not signed by input verifier for user %s", fhevm.ErrInvalidProof, user.Hex())
	}
	return handles, nil
}
