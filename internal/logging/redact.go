package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// Mask replaces redacted secrets.
const Mask = "***"

// Redactor masks configured credentials in free text. A nil Redactor is a
// no-op.
type Redactor struct {
	replacer *strings.Replacer
}

// NewRedactor builds a Redactor for the non-empty secrets. Longer secrets are
// replaced first so a secret containing another is masked whole.
func NewRedactor(secrets ...string) *Redactor {
	cleaned := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		if strings.TrimSpace(secret) != "" {
			cleaned = append(cleaned, secret)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	sort.Slice(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	pairs := make([]string, 0, len(cleaned)*2)
	for _, secret := range cleaned {
		pairs = append(pairs, secret, Mask)
	}
	return &Redactor{replacer: strings.NewReplacer(pairs...)}
}

// Redact returns text with every secret masked.
func (r *Redactor) Redact(text string) string {
	if r == nil || r.replacer == nil {
		return text
	}
	return r.replacer.Replace(text)
}

// Value masks string and error values.
func (r *Redactor) Value(v slog.Value) slog.Value {
	if r == nil {
		return v
	}
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.StringValue(r.Redact(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.StringValue(r.Redact(err.Error()))
		}
	}
	return v
}
