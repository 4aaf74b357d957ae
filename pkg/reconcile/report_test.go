package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportBuckets(t *testing.T) {
	r := &Report{}
	assert.False(t, r.Failed())

	r.AddSuccess()
	r.AddSuccess()
	r.AddFix("created step %q", "A")
	r.AddWarning("step %q has no pre-image", "A")
	assert.False(t, r.Failed(), "fixes and warnings never fail the run")

	r.AddFailure("step %q: create failed", "B")
	assert.True(t, r.Failed())

	assert.Equal(t, 2, r.Successes)
	assert.Equal(t, []string{`created step "A"`}, r.Fixes)
	assert.Equal(t, []string{`step "A" has no pre-image`}, r.Warnings)
	assert.Equal(t, []string{`step "B": create failed`}, r.Failures)
}

func TestReportJSONOmitsEmptyBuckets(t *testing.T) {
	r := &Report{}
	r.AddSuccess()

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"successes": 1}`, string(data))
}
