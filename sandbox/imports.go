package sandbox

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/sandflow/types"
)

// Import verdicts recorded per mediated statement.
const (
	VerdictRewritten = "allowed-rewritten"
	VerdictRejected  = "rejected"
)

// ImportDecision records what the mediator did with one import-like
// statement in the submitted code.
type ImportDecision struct {
	Line      int    `json:"line"`
	Statement string `json:"statement"`
	Module    string `json:"module"`
	Verdict   string `json:"verdict"`
}

// MediationResult is the outcome of a successful mediation pass.
type MediationResult struct {
	Code      string
	Decisions []ImportDecision
}

var (
	pyImportRe     = regexp.MustCompile(`^\s*import\s+([A-Za-z_][\w.]*)(?:\s+as\s+([A-Za-z_]\w*))?\s*$`)
	pyFromImportRe = regexp.MustCompile(`^\s*from\s+([A-Za-z_][\w.]*)\s+import\s+`)
	luaRequireRe   = regexp.MustCompile(`^\s*(?:local\s+[A-Za-z_]\w*\s*=\s*)?require\s*[\(\s]\s*['"]([\w.]+)['"]\s*\)?\s*$`)
)

// Mediator applies the import allow-list. Scripts written for other
// runtimes habitually carry import statements; statements naming a
// preloaded capability are rewritten to comments, everything else
// rejects the whole request with a full enumeration of what was
// denied and what is available.
type Mediator struct {
	available map[string]bool
	// aliases maps foreign module names to the preloaded capability that
	// covers them, so `import pandas` resolves to dataframe.
	aliases map[string]string
}

// moduleAliases maps well-known foreign library names onto the
// sandbox capabilities that serve the same purpose.
var moduleAliases = map[string]string{
	"pandas":     "dataframe",
	"numpy":      "stats",
	"statistics": "stats",
	"scipy":      "stats",
	"matplotlib": "plot",
	"seaborn":    "charts",
	"plotly":     "charts",
	"json":       "json",
	"re":         "re",
	"datetime":   "datetime",
	"time":       "datetime",
	"random":     "random",
	"math":       "math",
	"string":     "string",
	"table":      "table",
}

// NewMediator creates a mediator over the given set of available
// capability module names.
func NewMediator(available []string) *Mediator {
	avail := make(map[string]bool, len(available))
	for _, name := range available {
		avail[name] = true
	}
	return &Mediator{available: avail, aliases: moduleAliases}
}

// resolve maps an imported name onto an available capability, or
// returns false when nothing covers it.
func (m *Mediator) resolve(module string) (string, bool) {
	// dotted imports resolve by their root
	root := module
	if i := strings.IndexByte(module, '.'); i > 0 {
		root = module[:i]
	}
	if m.available[root] {
		return root, true
	}
	if target, ok := m.aliases[root]; ok && m.available[target] {
		return target, true
	}
	return "", false
}

// Mediate walks the code line by line, rewrites imports of available
// capabilities into comments, and rejects the request when any import
// names something unavailable. All offending imports are collected
// before failing so the error enumerates every one of them.
func (m *Mediator) Mediate(code string) (*MediationResult, error) {
	lines := strings.Split(code, "\n")
	decisions := make([]ImportDecision, 0, 2)
	var rejected []ImportDecision

	for i, line := range lines {
		module, ok := matchImport(line)
		if !ok {
			continue
		}
		d := ImportDecision{Line: i + 1, Statement: strings.TrimSpace(line), Module: module}
		if target, ok := m.resolve(module); ok {
			d.Verdict = VerdictRewritten
			lines[i] = fmt.Sprintf("-- %s is preloaded in the sandbox as %s", module, target)
			decisions = append(decisions, d)
			continue
		}
		d.Verdict = VerdictRejected
		rejected = append(rejected, d)
		decisions = append(decisions, d)
	}

	if len(rejected) > 0 {
		names := make([]string, len(rejected))
		for i, d := range rejected {
			names[i] = d.Module
		}
		return nil, types.NewErrorf(types.ErrCapabilityRejected,
			"import of unavailable module(s) not permitted: %s", strings.Join(names, ", ")).
			WithRemediation("remove the import statements; available capabilities are preloaded: " +
				strings.Join(m.Available(), ", "))
	}

	return &MediationResult{Code: strings.Join(lines, "\n"), Decisions: decisions}, nil
}

// Available lists the capability module names, sorted.
func (m *Mediator) Available() []string {
	names := make([]string, 0, len(m.available))
	for name := range m.available {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// matchImport extracts the module name from an import-like statement,
// accepting Python `import X` / `from X import Y` forms as well as
// Lua `require` calls.
func matchImport(line string) (string, bool) {
	if m := pyImportRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := pyFromImportRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := luaRequireRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}
