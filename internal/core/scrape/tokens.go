package scrape

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter はテキストのトークン数を数えます
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter はtiktokenのcl100k_baseエンコーディングによるTokenCounter実装
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// NewTiktokenCounter は新しいTiktokenCounterを作成します
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tiktokenエンコーディングの取得に失敗: %w", err)
	}

	return &TiktokenCounter{encoding: encoding}, nil
}

// Count はテキストのトークン数を返します
func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}
