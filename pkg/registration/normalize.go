package registration

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// NormalizeEntity canonicalizes a primary entity logical name. An empty name
// and the literal "none" both mean "no entity filter" and must compare equal;
// everything else is lower-cased, since logical names are case-insensitive.
func NormalizeEntity(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return ""
	}
	return strings.ToLower(trimmed)
}

// EqualGUID compares two GUID strings case-insensitively. Values that parse
// as UUIDs are compared canonically (so braces and hyphen variants compare
// equal); otherwise a case-insensitive string comparison is used. Two empty
// values are equal.
func EqualGUID(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	ua, errA := uuid.Parse(a)
	ub, errB := uuid.Parse(b)
	if errA == nil && errB == nil {
		return ua == ub
	}
	return strings.EqualFold(a, b)
}

// SortedAttributes returns a sorted copy of an image attribute list with
// blank entries dropped. Attribute sets are unordered; sorting gives a
// canonical form for comparison.
func SortedAttributes(attrs []string) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			out = append(out, strings.ToLower(trimmed))
		}
	}
	sort.Strings(out)
	return out
}

// EqualAttributes compares two attribute sets in canonical form.
func EqualAttributes(a, b []string) bool {
	sa, sb := SortedAttributes(a), SortedAttributes(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// EqualRunAsUser compares impersonation targets. Nil means "calling user" and
// only equals nil. Application ids take precedence over direct user ids, and
// both are GUID comparisons.
func EqualRunAsUser(a, b *RunAsUser) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ApplicationID != "" || b.ApplicationID != "" {
		return EqualGUID(a.ApplicationID, b.ApplicationID)
	}
	return EqualGUID(a.UserID, b.UserID)
}
