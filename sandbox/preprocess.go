package sandbox

import (
	"regexp"
	"strings"
)

// rewrite is one entry of the preprocessor fix table. Rewrites are
// purely textual, line-scoped, and must never widen capability
// surface; they exist to repair anti-patterns that would otherwise
// fail at runtime with confusing errors.
type rewrite struct {
	re      *regexp.Regexp
	repl    string
	message string
}

var rewrites = []rewrite{
	{
		// deprecated in-place append on dataframes
		re:      regexp.MustCompile(`^(\s*)([A-Za-z_]\w*):append\((.+)\)\s*$`),
		repl:    `$1$2 = dataframe.concat({$2, $3}, {ignore_index = true})`,
		message: "converted deprecated :append() to dataframe.concat with reassignment",
	},
	{
		// concat without the index flag silently renumbers rows
		re:      regexp.MustCompile(`dataframe\.concat\((\{[^{}]*\})\)`),
		repl:    `dataframe.concat($1, {ignore_index = true})`,
		message: "added ignore_index = true to dataframe.concat",
	},
	{
		// inplace mutation flag is unsupported; reassign instead
		re:      regexp.MustCompile(`^(\s*)([A-Za-z_]\w*):([A-Za-z_]\w*)\((.*?),?\s*\{\s*inplace\s*=\s*true\s*\}\s*\)\s*$`),
		repl:    `$1$2 = $2:$3($4)`,
		message: "replaced inplace = true with explicit reassignment",
	},
}

var chainedIndexRe = regexp.MustCompile(`^\s*[A-Za-z_]\w*\[[^\]]+\]\s*\[[^\]]+\]\s*=[^=]`)

// Preprocess applies the fix table to the code and reports every
// change made. The returned fix list feeds the result's
// fixes_applied field so callers can see their code was adjusted.
func Preprocess(code string) (string, []string) {
	lines := strings.Split(code, "\n")
	var fixes []string
	seen := make(map[string]bool)

	record := func(msg string) {
		if !seen[msg] {
			seen[msg] = true
			fixes = append(fixes, msg)
		}
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		for _, rw := range rewrites {
			if rw.re.MatchString(line) {
				line = rw.re.ReplaceAllString(line, rw.repl)
				record(rw.message)
			}
		}
		if chainedIndexRe.MatchString(line) {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			out = append(out, indent+"-- note: chained index assignment may not modify the original table")
			record("annotated chained index assignment")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), fixes
}
