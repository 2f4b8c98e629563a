package compactor

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

func loadEncoder() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		encoder = enc
	}
}

// EstimateTokens counts tokens with the cl100k_base encoding. When the
// encoding cannot be loaded it falls back to the usual four characters per
// token heuristic.
func EstimateTokens(text string) int {
	encOnce.Do(loadEncoder)
	if encoder != nil {
		return len(encoder.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// TruncateToTokens cuts text at a token boundary so it fits within budget,
// appending a marker for the dropped remainder. budget <= 0 disables the cap.
func TruncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	encOnce.Do(loadEncoder)

	if encoder == nil {
		max := budget * 4
		if len(text) <= max {
			return text
		}
		cut := max
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		dropped := (len(text) - cut + 3) / 4
		return text[:cut] + fmt.Sprintf("\n... [truncated ~%d tokens]", dropped)
	}

	toks := encoder.Encode(text, nil, nil)
	if len(toks) <= budget {
		return text
	}
	return encoder.Decode(toks[:budget]) + fmt.Sprintf("\n... [truncated %d tokens]", len(toks)-budget)
}
