package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic 助记词无效
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// ValidateMnemonic 验证助记词并返回详细原因
func ValidateMnemonic(mnemonic string) error {
	mnemonic = NormalizeMnemonic(mnemonic)
	if mnemonic == "" {
		return fmt.Errorf("%w: 助记词不能为空", ErrInvalidMnemonic)
	}

	words := strings.Split(mnemonic, " ")
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return fmt.Errorf("%w: 助记词数量无效: %d，应为 12, 15, 18, 21 或 24", ErrInvalidMnemonic, len(words))
	}

	wordSet := make(map[string]struct{}, 2048)
	for _, w := range bip39.GetWordList() {
		wordSet[w] = struct{}{}
	}
	for i, word := range words {
		if _, ok := wordSet[word]; !ok {
			return fmt.Errorf("%w: 第 %d 个单词 '%s' 不在 BIP39 词表中", ErrInvalidMnemonic, i+1, word)
		}
	}

	if !bip39.IsMnemonicValid(mnemonic) {
		return fmt.Errorf("%w: 校验和验证失败", ErrInvalidMnemonic)
	}
	return nil
}

// MnemonicToSeed 将助记词转换为种子（PBKDF2-HMAC-SHA512）
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

// NormalizeMnemonic 规范化空白与大小写
func NormalizeMnemonic(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
