package sandbox

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/types"
)

// pattern is one entry of the deny-list. Patterns are checked in
// declaration order and the first match wins, so broader categories
// must come after more specific ones.
type pattern struct {
	ID      string
	Message string
	re      *regexp.Regexp
}

// deniedPatterns is the static deny-list applied to raw code before
// any other pipeline stage. Matching is case-insensitive and spans
// lines. The list targets constructs no capability grant can make
// safe; plain references to unavailable modules are deliberately NOT
// here so they reach the import mediator and fail with a capability
// enumeration instead.
var deniedPatterns = []pattern{
	{
		ID:      "destructive-query",
		Message: "destructive query through the raw query interface is not permitted",
		re:      regexp.MustCompile(`(?is)\bdb\s*\.\s*(?:sql|query)\s*\(\s*['"` + "`" + `]\s*(?:delete|drop|insert|update|alter|create|truncate|replace)\b`),
	},
	{
		ID:      "store-write",
		Message: "write access to the document store is not permitted",
		re:      regexp.MustCompile(`(?i)\bdb\s*\.\s*(?:set_value|delete|insert|truncate|rename|bulk_insert|bulk_update)\s*\(`),
	},
	{
		ID:      "dynamic-code",
		Message: "dynamic code loading and evaluation are not permitted",
		re:      regexp.MustCompile(`(?i)\b(?:load|loadstring|loadfile|dofile|eval|exec|execfile|compile)\s*\(`),
	},
	{
		ID:      "host-mutation",
		Message: "modifying the host session or runtime attributes is not permitted",
		re:      regexp.MustCompile(`(?i)(?:\bsetattr\s*\(|\bsession\s*\.\s*\w+\s*=[^=])`),
	},
	{
		ID:      "file-access",
		Message: "file system access is not permitted",
		re:      regexp.MustCompile(`(?i)(?:\bio\s*\.\s*(?:open|lines|popen|output|input)\b|\bopen\s*\(|\bfile\s*\()`),
	},
	{
		ID:      "process-control",
		Message: "spawning processes or manipulating the host OS is not permitted",
		re:      regexp.MustCompile(`(?i)\bos\s*\.\s*(?:execute|remove|rename|exit|tmpname|getenv|setenv)\s*\(`),
	},
	{
		ID:      "network-access",
		Message: "network access is not permitted",
		re:      regexp.MustCompile(`(?i)(?:\b(?:urllib|requests|socket|ftplib|telnetlib)\s*\.|\bhttps?\s*\.\s*(?:request|get|post)\b)`),
	},
	{
		ID:      "interactive-input",
		Message: "interactive input is not available inside the sandbox",
		re:      regexp.MustCompile(`(?i)(?:\binput\s*\(|\bio\s*\.\s*read\b)`),
	},
}

// Scanner performs the fail-fast deny-list pass over submitted code.
type Scanner struct {
	patterns []pattern
	logger   *zap.Logger
}

// NewScanner creates a scanner with the default deny-list.
func NewScanner(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{patterns: deniedPatterns, logger: logger}
}

// Scan checks code against the deny-list and returns the first finding,
// or nil when the code is clean. Scanning never modifies the code.
func (s *Scanner) Scan(code string, identity string) *types.SecurityFinding {
	for _, p := range s.patterns {
		if m := p.re.FindString(code); m != "" {
			finding := &types.SecurityFinding{
				PatternID:   p.ID,
				Message:     p.Message,
				MatchedText: m,
			}
			s.logger.Warn("security violation detected",
				zap.String("pattern_id", p.ID),
				zap.String("identity", identity),
				zap.String("matched", m),
			)
			return finding
		}
	}
	return nil
}

// PatternIDs lists the deny-list entry identifiers, in match order.
func (s *Scanner) PatternIDs() []string {
	ids := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		ids[i] = p.ID
	}
	return ids
}
