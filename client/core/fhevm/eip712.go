package fhevm

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 用户解密授权消息
const (
	DecryptionDomainName    = "Decryption"
	DecryptionDomainVersion = "1"
	UserDecryptPrimaryType  = "UserDecryptRequestVerification"

	// DefaultDurationDays 默认授权有效天数
	DefaultDurationDays = 10
)

// DefaultExtraData 授权消息的 extraData 字段
var DefaultExtraData = []byte{0x00}

var userDecryptTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	UserDecryptPrimaryType: {
		{Name: "publicKey", Type: "bytes"},
		{Name: "contractAddresses", Type: "address[]"},
		{Name: "startTimestamp", Type: "uint256"},
		{Name: "durationDays", Type: "uint256"},
		{Name: "extraData", Type: "bytes"},
	},
}

// UserDecryptTypedData 构造用户解密授权的 EIP-712 消息
//
// 域的 chainId 为网关链ID，verifyingContract 为网关链上的解密合约地址。
func UserDecryptTypedData(
	gatewayChainID uint64,
	verifyingContract common.Address,
	publicKey []byte,
	contracts []common.Address,
	startTimestamp, durationDays int64,
	extraData []byte,
) apitypes.TypedData {
	addrs := make([]interface{}, len(contracts))
	for i, c := range contracts {
		addrs[i] = c.Hex()
	}

	return apitypes.TypedData{
		Types:       userDecryptTypes,
		PrimaryType: UserDecryptPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DecryptionDomainName,
			Version:           DecryptionDomainVersion,
			ChainId:           math.NewHexOrDecimal256(int64(gatewayChainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(publicKey),
			"contractAddresses": addrs,
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.FormatInt(durationDays, 10),
			"extraData":         hexutil.Encode(extraData),
		},
	}
}

// RecoverUserDecryptSigner 从解密请求恢复授权签名者地址
func RecoverUserDecryptSigner(gatewayChainID uint64, verifyingContract common.Address, req *UserDecryptRequest) (common.Address, error) {
	start, err := strconv.ParseInt(req.RequestValidity.StartTimestamp, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: start timestamp %q", ErrInvalidSignature, req.RequestValidity.StartTimestamp)
	}
	days, err := strconv.ParseInt(req.RequestValidity.DurationDays, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: duration days %q", ErrInvalidSignature, req.RequestValidity.DurationDays)
	}
	if len(req.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", ErrInvalidSignature, len(req.Signature))
	}

	td := UserDecryptTypedData(gatewayChainID, verifyingContract, req.PublicKey, req.ContractAddresses, start, days, req.ExtraData)
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, fmt.Errorf("hash typed data: %w", err)
	}

	sig := append([]byte(nil), req.Signature...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
