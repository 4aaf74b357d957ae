package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEntity(t *testing.T) {
	assert.Equal(t, "", NormalizeEntity(""))
	assert.Equal(t, "", NormalizeEntity("none"))
	assert.Equal(t, "", NormalizeEntity("None"))
	assert.Equal(t, "", NormalizeEntity("  NONE  "))
	assert.Equal(t, "account", NormalizeEntity("Account"))
	assert.Equal(t, "ako_grantrequest", NormalizeEntity(" ako_GrantRequest "))
}

func TestEqualGUID(t *testing.T) {
	assert.True(t, EqualGUID("", ""))
	assert.False(t, EqualGUID("", "d9aa00de-95bb-4b5a-8c32-7f01f8b90a23"))
	assert.True(t, EqualGUID(
		"D9AA00DE-95BB-4B5A-8C32-7F01F8B90A23",
		"d9aa00de-95bb-4b5a-8c32-7f01f8b90a23"))
	assert.True(t, EqualGUID(
		"{d9aa00de-95bb-4b5a-8c32-7f01f8b90a23}",
		"d9aa00de-95bb-4b5a-8c32-7f01f8b90a23"))
	assert.False(t, EqualGUID(
		"d9aa00de-95bb-4b5a-8c32-7f01f8b90a23",
		"11111111-1111-1111-1111-111111111111"))
	// Non-UUID values fall back to a case-insensitive comparison.
	assert.True(t, EqualGUID("abc", "ABC"))
}

func TestSortedAttributes(t *testing.T) {
	got := SortedAttributes([]string{" Name ", "accountnumber", "", "  "})
	assert.Equal(t, []string{"accountnumber", "name"}, got)
}

func TestEqualAttributes(t *testing.T) {
	assert.True(t, EqualAttributes(nil, nil))
	assert.True(t, EqualAttributes(
		[]string{"name", "accountnumber"},
		[]string{"AccountNumber", " Name"}))
	assert.False(t, EqualAttributes([]string{"name"}, []string{"name", "telephone1"}))
}

func TestEqualRunAsUser(t *testing.T) {
	app := &RunAsUser{ApplicationID: "d9aa00de-95bb-4b5a-8c32-7f01f8b90a23"}
	appUpper := &RunAsUser{ApplicationID: "D9AA00DE-95BB-4B5A-8C32-7F01F8B90A23"}
	user := &RunAsUser{UserID: "22222222-2222-2222-2222-222222222222"}

	assert.True(t, EqualRunAsUser(nil, nil))
	assert.False(t, EqualRunAsUser(nil, app), "calling user never equals an impersonation target")
	assert.True(t, EqualRunAsUser(app, appUpper))
	assert.False(t, EqualRunAsUser(app, user), "application id takes precedence over user id")
	assert.True(t, EqualRunAsUser(user, &RunAsUser{UserID: user.UserID}))
}
