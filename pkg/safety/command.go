package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/forge/pkg/tool"
)

// dangerousPrimitives are commands whose effects are hard or impossible
// to reverse; used by the command-substitution / chained-operator checks
// below. The recursive-deletion patterns match rm directly.
var dangerousPrimitives = []string{"rm", "mv", "dd", "mkfs", "shred"}

// forbiddenCommandPatterns enumerates the shapes spec.md §4.2 requires be
// rejected outright, each compiled once at package init. Every entry here
// is exercised by TestSanitizeRejectsForbiddenPatterns.
var forbiddenCommandPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"recursive forced deletion of root or system paths", regexp.MustCompile(`\brm\s+.*-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*\s+(/\s*$|/\s|/(etc|bin|usr|lib|boot|sys|dev|home)\b)`)},
	{"recursive forced deletion of root or system paths", regexp.MustCompile(`\brm\s+.*-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*\s+(/\s*$|/\s|/(etc|bin|usr|lib|boot|sys|dev|home)\b)`)},
	{"pipe to shell of network-fetched content", regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(sudo\s+)?(sh|bash|zsh|python3?)\b`)},
	{"unconditional shutdown/reboot/halt", regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`)},
	{"fork bomb shape", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&?\s*\}\s*;?\s*:`)},
}

var commandSubstitutionRe = regexp.MustCompile(`[$\x60]\((.*)\)|\x60([^\x60]*)\x60`)
var chainedOperatorRe = regexp.MustCompile(`(;|&&|\|\|)\s*(.+)$`)
var wildcardDeleteRe = regexp.MustCompile(`\brm\s+[^|;&]*[*?]`)

// Sanitizer classifies shell commands as safe or unsafe before the
// Process Manager spawns them, and filters environment-variable maps
// supplied alongside a command.
type Sanitizer struct{}

// NewSanitizer builds a command Sanitizer.
func NewSanitizer() *Sanitizer { return &Sanitizer{} }

// Sanitize rejects — never silently rewrites a dangerous primitive away
// — commands matching any forbidden pattern. In strict mode it also
// rejects wildcard bulk deletion. It never returns a rewritten command
// today (spec.md's "possibly-rewritten" contract is honored by always
// returning the input unchanged on success); a future strategy may trim
// whitespace or normalize quoting without changing semantics. errType
// classifies a rejection per spec.md §7's taxonomy: every pattern match
// here is a deliberate deny-list hit, so it is always SECURITY, never
// INTERNAL — an empty command is the one VALIDATION case.
func (s *Sanitizer) Sanitize(command string, strict bool) (ok bool, rewritten string, errType tool.ErrorType, reason string) {
	if strings.TrimSpace(command) == "" {
		return false, command, tool.ErrValidation, "command is empty"
	}

	for _, p := range forbiddenCommandPatterns {
		if p.re.MatchString(command) {
			return false, command, tool.ErrSecurity, p.name
		}
	}

	if m := commandSubstitutionRe.FindStringSubmatch(command); m != nil {
		inner := m[1]
		if inner == "" {
			inner = m[2]
		}
		if containsDangerousPrimitive(inner) {
			return false, command, tool.ErrSecurity, "command substitution wraps a dangerous primitive"
		}
	}

	if m := chainedOperatorRe.FindStringSubmatch(command); m != nil {
		rhs := strings.TrimSpace(m[2])
		if containsDangerousPrimitive(rhs) {
			return false, command, tool.ErrSecurity, "chained operator's right-hand side is a dangerous primitive"
		}
	}

	if strict && wildcardDeleteRe.MatchString(command) {
		return false, command, tool.ErrSecurity, "strict mode rejects wildcard bulk deletion"
	}

	return true, command, "", ""
}

func containsDangerousPrimitive(segment string) bool {
	fields := strings.Fields(segment)
	if len(fields) == 0 {
		return false
	}
	base := fields[0]
	for _, p := range dangerousPrimitives {
		if base == p {
			return true
		}
	}
	return false
}

var envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const maxEnvValueLength = 4096

// FilterEnv filters a supplied environment-variable map: names must
// match the shell identifier pattern, values are coerced to strings and
// length-bounded, and unknown (non-conforming) names are dropped
// silently rather than rejecting the whole invocation.
func (s *Sanitizer) FilterEnv(env map[string]any) map[string]string {
	out := make(map[string]string, len(env))
	for name, v := range env {
		if !envNameRe.MatchString(name) {
			continue
		}
		val := fmt.Sprintf("%v", v)
		if len(val) > maxEnvValueLength {
			val = val[:maxEnvValueLength]
		}
		out[name] = val
	}
	return out
}
