package scrape

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
)

// ErrEmptyInput は空文字列に対するフィンガープリント計算のエラー
var ErrEmptyInput = errors.New("input text is empty")

// Fingerprint はテキストの16進MD5フィンガープリントを返します。
// ページ本文とチャンクの両方の変更検出に使われるため、
// 同一テキストからは常に同一の値が得られます。
func Fingerprint(text string) (string, error) {
	if text == "" {
		return "", ErrEmptyInput
	}

	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}
