package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/issueflow/pkg/domain"
)

// DefaultMaxFeedbackSize bounds review feedback in bytes.
const DefaultMaxFeedbackSize = 4096

// SanitizeFeedback checks review feedback against limit and drops control
// characters except line breaks and tabs. Oversized or non UTF-8 feedback is
// rejected with domain.ErrInvalidInput rather than truncated. A limit of zero
// or less selects DefaultMaxFeedbackSize.
func SanitizeFeedback(feedback string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxFeedbackSize
	}
	if n := len(feedback); n > limit {
		return "", fmt.Errorf("%w: feedback is %d bytes, limit is %d", domain.ErrInvalidInput, n, limit)
	}
	if !utf8.ValidString(feedback) {
		return "", fmt.Errorf("%w: feedback is not valid UTF-8", domain.ErrInvalidInput)
	}
	return strings.Map(keepFeedbackRune, feedback), nil
}

func keepFeedbackRune(r rune) rune {
	switch {
	case r == '\n', r == '\r', r == '\t':
		return r
	case unicode.IsControl(r):
		return -1
	}
	return r
}
