// Package reply describes a reply-generation request as the form submits it.
package reply

import (
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/replyguard/internal/domain"
)

// Content length bounds keep a single request well inside the token budget.
const (
	MinContentLength = 10
	MaxContentLength = 2000

	DefaultTone     = "professional"
	DefaultLanguage = "en"
)

// Mode selects the upstream endpoint.
type Mode string

// Generation modes. ModeGenerateSingle asks the upstream for a summary
// alongside the reply.
const (
	ModeGenerate       Mode = "generate"
	ModeRegenerate     Mode = "regenerate"
	ModeGenerateSingle Mode = "generate-single"
)

// Valid reports whether m names a known upstream endpoint.
func (m Mode) Valid() bool {
	switch m {
	case ModeGenerate, ModeRegenerate, ModeGenerateSingle:
		return true
	}
	return false
}

// Request is a reply-generation request.
type Request struct {
	Subject      string
	EmailContent string
	Tone         string
	Language     string
}

// Normalize trims the text fields and fills defaults, then validates.
func Normalize(r Request) (Request, error) {
	out := Request{
		Subject:      strings.TrimSpace(r.Subject),
		EmailContent: strings.TrimSpace(r.EmailContent),
		Tone:         strings.TrimSpace(r.Tone),
		Language:     strings.TrimSpace(r.Language),
	}
	if out.Tone == "" {
		out.Tone = DefaultTone
	}
	if out.Language == "" {
		out.Language = DefaultLanguage
	}

	if out.Subject == "" {
		return Request{}, domain.NewValidationError("subject", "email subject is required")
	}
	n := utf8.RuneCountInString(out.EmailContent)
	switch {
	case n == 0:
		return Request{}, domain.NewValidationError("emailContent", "email content is required")
	case n < MinContentLength:
		return Request{}, domain.NewValidationError("emailContent", "email content should be at least 10 characters")
	case n > MaxContentLength:
		return Request{}, domain.NewValidationError("emailContent", "email content too long (max 2000 characters)")
	}
	return out, nil
}
