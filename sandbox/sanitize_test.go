package sandbox

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSanitizeUnicode_CleanPassThrough(t *testing.T) {
	t.Parallel()

	code := "x = 1 + 1\nprint(x) -- 合计"
	out, report, err := SanitizeUnicode(code)
	require.NoError(t, err)
	assert.Equal(t, code, out)
	assert.Zero(t, report.Replacements)
	assert.Empty(t, report.Warning)
}

func TestSanitizeUnicode_InvalidBytes(t *testing.T) {
	t.Parallel()

	code := "x = 1" + string([]byte{0xff, 0xfe}) + "\nprint(x)"
	out, report, err := SanitizeUnicode(code)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Replacements)
	assert.Contains(t, report.Warning, "2")
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "x = 1")
	assert.Contains(t, out, "print(x)")
}

func TestSanitizeUnicode_SurrogateBytes(t *testing.T) {
	t.Parallel()

	// a UTF-16 surrogate encoded as WTF-8 (0xED 0xA0 0x80 = U+D800)
	code := "s = 'a" + string([]byte{0xed, 0xa0, 0x80}) + "b'"
	out, report, err := SanitizeUnicode(code)
	require.NoError(t, err)
	assert.Positive(t, report.Replacements)
	assert.True(t, utf8.ValidString(out))
}

// The sanitizer always yields valid UTF-8 and is idempotent.
func TestSanitizeUnicode_Properties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOf(rapid.Byte()).Draw(t, "raw")
		out, _, err := SanitizeUnicode(string(raw))
		if err != nil {
			t.Skip("fatal encoding failure is allowed")
		}
		if !utf8.ValidString(out) {
			t.Fatalf("output is not valid UTF-8")
		}
		again, report, err := SanitizeUnicode(out)
		if err != nil {
			t.Fatalf("second pass failed: %v", err)
		}
		if again != out {
			t.Fatalf("sanitizer is not idempotent")
		}
		if report.Replacements != 0 {
			t.Fatalf("second pass replaced %d characters", report.Replacements)
		}
	})
}
