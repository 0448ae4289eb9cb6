package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	creditCardRe = regexp.MustCompile(`\b\d(?:[ \-]?\d){12,15}\b`)
	phoneRe      = regexp.MustCompile(`\+?\d[\d \-().]{7,}\d`)
	secretRe     = regexp.MustCompile(`\b(?:sk|pk|key)[-_][A-Za-z0-9_\-]{12,}\b`)
)

// DataMasker hides personal data that users paste into questions before the
// text is written to logs or the audit sink.
type DataMasker struct {
	previewLen int
}

// NewDataMasker returns a masker whose previews keep at most previewLen
// characters. previewLen <= 0 disables truncation.
func NewDataMasker(previewLen int) *DataMasker {
	return &DataMasker{previewLen: previewLen}
}

// MaskText replaces emails, card numbers, phone numbers and API-key-like
// tokens in text.
func (m *DataMasker) MaskText(text string) string {
	text = secretRe.ReplaceAllString(text, "***")
	text = emailRe.ReplaceAllStringFunc(text, maskEmail)
	text = creditCardRe.ReplaceAllStringFunc(text, maskCreditCard)
	text = phoneRe.ReplaceAllStringFunc(text, maskPhone)
	return text
}

// Preview masks text and cuts it to the configured length.
func (m *DataMasker) Preview(text string) string {
	text = m.MaskText(strings.TrimSpace(text))
	if m.previewLen <= 0 || utf8.RuneCountInString(text) <= m.previewLen {
		return text
	}
	r := []rune(text)
	return string(r[:m.previewLen]) + "..."
}

// maskEmail: "john.doe@example.com" → "jo***@***.com"
func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***"
	}
	local, domain := parts[0], parts[1]

	visible := 2
	if len(local) < visible {
		visible = len(local)
	}
	domainParts := strings.Split(domain, ".")
	ext := domainParts[len(domainParts)-1]
	return fmt.Sprintf("%s***@***.%s", local[:visible], ext)
}

// maskPhone keeps the last 4 digits.
func maskPhone(phone string) string {
	d := digits(phone)
	if len(d) < 4 {
		return "***-***-****"
	}
	return "***-***-" + d[len(d)-4:]
}

// maskCreditCard: "4111 1111 1111 1111" → "****-****-****-1111"
func maskCreditCard(cc string) string {
	d := digits(cc)
	if len(d) < 4 {
		return "****-****-****-****"
	}
	return "****-****-****-" + d[len(d)-4:]
}

func digits(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
