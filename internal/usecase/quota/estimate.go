package quota

import (
	"unicode/utf16"

	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
)

// EstimateTokens approximates the token cost of sending text: one token per
// CharsPerToken UTF-16 code units, rounded up, plus the fixed response
// allowance and processing buffer. An empty text still costs the allowances.
func EstimateTokens(l domquota.Limits, text string) int {
	units := 0
	for _, r := range text {
		units += utf16.RuneLen(r)
	}
	input := (units + l.CharsPerToken - 1) / l.CharsPerToken
	return input + l.ResponseTokenAllowance + l.ProcessingBuffer
}
