package duel

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	apperrors "github.com/wfunc/duel-game/internal/errors"
	"golang.org/x/crypto/sha3"
)

// NonceSize 随机数字节长度
const NonceSize = 32

// commitmentHexLen Keccak-256 摘要的十六进制长度
const commitmentHexLen = 64

// NewNonce 生成十六进制编码的随机数
func NewNonce() (string, error) {
	b := make([]byte, NonceSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Commit 计算出招承诺: hex(keccak256(move || nonce))
func Commit(move Move, nonce string) (string, error) {
	if !move.Valid() {
		return "", apperrors.New(apperrors.ErrInvalidMove, move.String())
	}
	raw, err := decodeNonce(nonce)
	if err != nil {
		return "", err
	}
	return digest(move, raw), nil
}

// VerifyReveal 校验揭示内容是否与承诺一致
func VerifyReveal(commitment string, move Move, nonce string) bool {
	if !move.Valid() {
		return false
	}
	raw, err := decodeNonce(nonce)
	if err != nil {
		return false
	}
	want := digest(move, raw)
	got := normalizeHex(commitment)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// NormalizeCommitment 校验并规范化客户端提交的承诺
func NormalizeCommitment(commitment string) (string, error) {
	c := normalizeHex(commitment)
	if len(c) != commitmentHexLen {
		return "", apperrors.Newf(apperrors.ErrInvalidCommitment, "长度应为%d个十六进制字符", commitmentHexLen)
	}
	if _, err := hex.DecodeString(c); err != nil {
		return "", apperrors.New(apperrors.ErrInvalidCommitment, "非十六进制")
	}
	return c, nil
}

func digest(move Move, nonce []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{byte(move)})
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil))
}

func decodeNonce(nonce string) ([]byte, error) {
	raw, err := hex.DecodeString(normalizeHex(nonce))
	if err != nil || len(raw) != NonceSize {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "nonce 应为%d字节的十六进制串", NonceSize)
	}
	return raw, nil
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strings.ToLower(s)
}
