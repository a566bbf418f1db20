package cmd

import (
	"regexp"
	"strings"
)

// teamCodePatterns is the ordered heuristic chain for extracting a team code
// from an email local part. First match wins; the first capture group is
// used when present, otherwise the whole match. The heuristic is best-effort
// business logic, not a correctness guarantee, so it stays pluggable: edit
// the chain, not the callers.
var teamCodePatterns = []*regexp.Regexp{
	// Explicit "team"-prefixed token: team42, x.team-alpha -> 42, alpha
	regexp.MustCompile(`(?:^|[._-])team[\s._-]*([a-z0-9]+)`),
	// Token containing team+digits kept whole: alphateam7 -> alphateam7
	regexp.MustCompile(`([a-z0-9]*team[0-9]+)`),
	// t<digits> shorthand: t123 -> 123
	regexp.MustCompile(`^t([0-9]+)$`),
	// Short alphanumeric code shape kept whole: alpha42 -> alpha42
	regexp.MustCompile(`^([a-z]{2,8}[0-9]{1,4})$`),
	// Generic alphanumeric fallback kept whole
	regexp.MustCompile(`^([a-z0-9]{4,10})$`),
}

// deriveTeamCode resolves the team code for one merged row.
// Priority: explicit join_code column, then team_code column, then the
// heuristic chain over the email local part. No email, no code.
func deriveTeamCode(row map[string]interface{}) string {
	if code := stringField(row, "join_code"); code != "" {
		return code
	}
	if code := stringField(row, "team_code"); code != "" {
		return code
	}

	email := stringField(row, "email")
	if email == "" {
		return ""
	}

	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	local = strings.ToLower(local)

	for _, pattern := range teamCodePatterns {
		match := pattern.FindStringSubmatch(local)
		if match == nil {
			continue
		}
		if len(match) > 1 && match[1] != "" {
			return match[1]
		}
		return match[0]
	}

	// No pattern matched; the local part itself is the best we have.
	return local
}

// stringField returns the row value for key if it is a non-empty string.
func stringField(row map[string]interface{}, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}
