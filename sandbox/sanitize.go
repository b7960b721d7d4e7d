package sandbox

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/sandflow/types"
)

// SanitizeReport describes what the sanitizer changed.
type SanitizeReport struct {
	Replacements int
	Warning      string
}

// SanitizeUnicode replaces UTF-16 surrogate code points and invalid
// UTF-8 byte sequences with spaces, then verifies the result survives
// an encoding round trip. Surrogates leak into code copied out of
// chat transports and would otherwise abort the interpreter with an
// opaque error mid-run.
func SanitizeUnicode(code string) (string, *SanitizeReport, error) {
	replaced := 0
	var b strings.Builder
	b.Grow(len(code))

	for i := 0; i < len(code); {
		r, size := utf8.DecodeRuneInString(code[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			// invalid byte
			b.WriteByte(' ')
			replaced++
		case r >= 0xD800 && r <= 0xDFFF:
			b.WriteRune(' ')
			replaced++
		default:
			b.WriteRune(r)
		}
		i += size
	}

	out := b.String()
	if !utf8.ValidString(out) {
		return "", nil, types.NewError(types.ErrEncodingError,
			"code contains characters that cannot be encoded").
			WithRemediation("re-type the code using plain ASCII characters; avoid pasting from rich-text sources")
	}

	report := &SanitizeReport{Replacements: replaced}
	if replaced > 0 {
		report.Warning = fmt.Sprintf("replaced %d invalid or surrogate character(s) with spaces", replaced)
	}
	return out, report, nil
}
