package scrape

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyText は空テキストの分割要求に対するエラー
	ErrEmptyText = errors.New("text must be a non-empty string")

	// ErrInvalidChunkSize は0以下のチャンクサイズに対するエラー
	ErrInvalidChunkSize = errors.New("chunk size must be a positive integer")
)

// boundaryRatio は文境界・単語境界を採用する下限位置（ウィンドウの75%）
const boundaryRatio = 0.75

// SplitText はテキストをchunkSize文字以下のチャンク列に分割します。
//
// 各ウィンドウ内で、後方から ". " の文境界を探し、ウィンドウの75%以降に
// あれば採用します。なければ同じ条件で空白の単語境界を探し、それもなければ
// ウィンドウ末尾で強制分割します。境界直後までを1チャンクとして消費し、
// チャンクと残りテキストの両端の空白は取り除きます。
func SplitText(text string, chunkSize int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	var chunks []string
	remaining := []rune(text)

	for len(remaining) > 0 {
		if len(remaining) <= chunkSize {
			if chunk := strings.TrimSpace(string(remaining)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		window := remaining[:chunkSize]
		threshold := boundaryRatio * float64(chunkSize)

		split := lastSentenceBoundary(window)
		if split < 0 || float64(split) < threshold {
			split = lastSpace(window)
		}
		if split < 0 || float64(split) < threshold {
			split = chunkSize
		}

		// 境界文字までを含めて消費する
		end := split + 1
		if end > len(remaining) {
			end = len(remaining)
		}

		if chunk := strings.TrimSpace(string(remaining[:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = []rune(strings.TrimSpace(string(remaining[end:])))
	}

	return chunks, nil
}

// lastSentenceBoundary はウィンドウ内で最後に現れる ". " のピリオド位置を返します
func lastSentenceBoundary(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '.' && window[i+1] == ' ' {
			return i
		}
	}
	return -1
}

// lastSpace はウィンドウ内で最後に現れる空白の位置を返します
func lastSpace(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == ' ' {
			return i
		}
	}
	return -1
}
