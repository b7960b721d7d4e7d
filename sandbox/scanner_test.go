package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestScanner_DestructiveQuery(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	finding := s.Scan(`frappe.db.sql('DELETE FROM tabUser')`, "tester")
	require.NotNil(t, finding)
	assert.Equal(t, "destructive-query", finding.PatternID)
	assert.Contains(t, finding.MatchedText, "DELETE")

	for _, verb := range []string{"DROP", "insert", "Update", "TRUNCATE", "alter", "create", "replace"} {
		finding := s.Scan(`db.sql("`+verb+` something")`, "tester")
		require.NotNil(t, finding, "verb %s should be denied", verb)
		assert.Equal(t, "destructive-query", finding.PatternID)
	}

	// read-only raw queries pass the scanner
	assert.Nil(t, s.Scan(`rows = db.sql("SELECT name FROM tabUser")`, "tester"))
}

func TestScanner_StoreWrite(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	for _, code := range []string{
		`db.set_value("User", "x", "enabled", 0)`,
		`db.delete("User", "x")`,
		`db.insert({doctype = "User"})`,
		`db.truncate("User")`,
	} {
		finding := s.Scan(code, "tester")
		require.NotNil(t, finding, "code %q should be denied", code)
		assert.Equal(t, "store-write", finding.PatternID)
	}
}

func TestScanner_DynamicCode(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	for _, code := range []string{
		`f = load("return 1")`,
		`loadstring("x = 1")()`,
		`dofile("/etc/passwd")`,
		`eval("1 + 1")`,
		`exec("print(1)")`,
	} {
		finding := s.Scan(code, "tester")
		require.NotNil(t, finding, "code %q should be denied", code)
		assert.Equal(t, "dynamic-code", finding.PatternID)
	}

	// substrings of identifiers must not trigger
	assert.Nil(t, s.Scan(`payload = download(url_id)`, "tester"))
}

func TestScanner_HostMutation(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	finding := s.Scan(`session.user = "Administrator"`, "tester")
	require.NotNil(t, finding)
	assert.Equal(t, "host-mutation", finding.PatternID)

	// comparison is not mutation
	assert.Nil(t, s.Scan(`if session.user == "Guest" then print("hi") end`, "tester"))
}

func TestScanner_FileAndProcess(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	cases := map[string]string{
		`f = io.open("/etc/passwd")`: "file-access",
		`open("data.csv")`:           "file-access",
		`os.execute("ls")`:           "process-control",
		`os.remove("/tmp/x")`:        "process-control",
		`io.read()`:                  "interactive-input",
		`input("enter value")`:       "interactive-input",
		`socket.connect(host, 80)`:   "network-access",
		`requests.get(url)`:          "network-access",
	}
	for code, wantID := range cases {
		finding := s.Scan(code, "tester")
		require.NotNil(t, finding, "code %q should be denied", code)
		assert.Equal(t, wantID, finding.PatternID, "code %q", code)
	}
}

// Plain module references must fall through to the import mediator so
// the caller gets a capability enumeration, not a security violation.
func TestScanner_ImportsFallThrough(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	assert.Nil(t, s.Scan("import os\nos.system('ls')", "tester"))
	assert.Nil(t, s.Scan(`require("lfs")`, "tester"))
}

func TestScanner_CleanCode(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	for _, code := range []string{
		`x = 1 + 1`,
		`y = {1, 2, 3}`,
		"total = 0\nfor i = 1, 10 do total = total + i end\nprint(total)",
		`result = math.sqrt(16)`,
	} {
		assert.Nil(t, s.Scan(code, "tester"), "code %q should be clean", code)
	}
}

// Scanning is a pure function of its input: same code, same verdict.
func TestScanner_Deterministic(t *testing.T) {
	t.Parallel()
	s := NewScanner(zap.NewNop())

	rapid.Check(t, func(t *rapid.T) {
		code := rapid.String().Draw(t, "code")
		first := s.Scan(code, "tester")
		second := s.Scan(code, "tester")
		if (first == nil) != (second == nil) {
			t.Fatalf("verdict changed between scans")
		}
		if first != nil && first.PatternID != second.PatternID {
			t.Fatalf("pattern id changed between scans")
		}
	})
}
