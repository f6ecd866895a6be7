package scanner

import "regexp"

// Pattern is one named vulnerability signature
type Pattern struct {
	Name   string
	Regexp *regexp.Regexp
}

// Issue names reported in findings
const (
	IssueHardcodedPassword = "Hardcoded password"
	IssueHardcodedAPIKey   = "Hardcoded API key"
	IssueHardcodedSecret   = "Hardcoded secret"
	IssueEval              = "Use of eval()"
	IssueDangerousHTML     = "Dangerous innerHTML (dangerouslySetInnerHTML)"
	IssueInnerHTML         = "Direct innerHTML assignment"
	IssueSQLConcat         = "SQL injection risk (string concatenation)"
	IssueCommandExec       = "Command execution"
)

// catalogue is evaluated in this order for every file. All patterns are
// case-insensitive.
var catalogue = []Pattern{
	{IssueHardcodedPassword, regexp.MustCompile(`(?i)password\s*[:=]\s*["'][^"']+["']`)},
	{IssueHardcodedAPIKey, regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*["'][^"']+["']`)},
	{IssueHardcodedSecret, regexp.MustCompile(`(?i)secret\s*[:=]\s*["'][^"']+["']`)},
	{IssueEval, regexp.MustCompile(`(?i)\beval\s*\(`)},
	{IssueDangerousHTML, regexp.MustCompile(`(?i)dangerouslySetInnerHTML`)},
	{IssueInnerHTML, regexp.MustCompile(`(?i)\.innerHTML\s*=[^=]`)},
	{IssueSQLConcat, regexp.MustCompile("(?i)[\"'`]\\s*(?:select|insert|update|delete)\\b[^\"'`\\n]*[\"'`]\\s*\\+")},
	{IssueCommandExec, regexp.MustCompile(`(?i)\b(?:exec|execSync|spawn|spawnSync|system|popen)\s*\(`)},
}

// Catalogue returns a copy of the built-in signature list in evaluation order
func Catalogue() []Pattern {
	out := make([]Pattern, len(catalogue))
	copy(out, catalogue)
	return out
}
