package webres

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akoyago/deployctl/pkg/reconcile"
	"github.com/akoyago/deployctl/pkg/registration"
	"github.com/akoyago/deployctl/pkg/store/local"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestDiscover(t *testing.T) {
	root := writeTree(t, map[string]string{
		"forms/grant.js":    "console.log(1);",
		"pages/portal.html": "<html></html>",
		"pages/notes.txt":   "ignored",
		"styles/site.css":   "ignored",
	})

	resources, err := Discover(root, "akoyago_/", nil)
	require.NoError(t, err)
	require.Len(t, resources, 2, "only the HTML/JS subset is managed")

	byName := map[string]LocalResource{}
	for _, r := range resources {
		byName[r.Name] = r
	}
	js, ok := byName["akoyago_/forms/grant.js"]
	require.True(t, ok)
	assert.Equal(t, registration.WebResourceJavaScript, js.Type)
	html, ok := byName["akoyago_/pages/portal.html"]
	require.True(t, ok)
	assert.Equal(t, registration.WebResourceHTML, html.Type)
}

func TestDiscoverPatterns(t *testing.T) {
	root := writeTree(t, map[string]string{
		"forms/grant.js":   "a",
		"forms/contact.js": "b",
		"admin/secret.js":  "c",
	})

	resources, err := Discover(root, "akoyago_/", []string{"akoyago_/forms/*"})
	require.NoError(t, err)
	require.Len(t, resources, 2)
	for _, r := range resources {
		assert.Contains(t, r.Name, "akoyago_/forms/")
	}
}

func TestCheckerInSync(t *testing.T) {
	s, err := local.Open(":memory:")
	require.NoError(t, err)
	ctx := context.Background()

	root := writeTree(t, map[string]string{"forms/grant.js": "console.log(1);"})
	_, err = s.SeedWebResource(ctx, "akoyago_/forms/grant.js",
		registration.WebResourceJavaScript, []byte("console.log(1);"), false)
	require.NoError(t, err)

	resources, err := Discover(root, "akoyago_/", nil)
	require.NoError(t, err)

	report := &reconcile.Report{}
	NewChecker(s, report).Run(ctx, resources)

	assert.False(t, report.Failed())
	assert.Equal(t, 1, report.Successes)
	assert.Empty(t, report.Warnings)
}

func TestCheckerDriftWithoutFixWarns(t *testing.T) {
	s, err := local.Open(":memory:")
	require.NoError(t, err)
	ctx := context.Background()

	root := writeTree(t, map[string]string{"forms/grant.js": "new content"})
	_, err = s.SeedWebResource(ctx, "akoyago_/forms/grant.js",
		registration.WebResourceJavaScript, []byte("old content"), false)
	require.NoError(t, err)

	resources, err := Discover(root, "akoyago_/", nil)
	require.NoError(t, err)

	report := &reconcile.Report{}
	NewChecker(s, report).Run(ctx, resources)

	assert.False(t, report.Failed())
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "content differs")

	// Nothing was pushed.
	res, err := s.WebResourceByName(ctx, "akoyago_/forms/grant.js")
	require.NoError(t, err)
	assert.Equal(t, []byte("old content"), res.Content)
}

func TestCheckerFixStripsLayerAndPushes(t *testing.T) {
	s, err := local.Open(":memory:")
	require.NoError(t, err)
	ctx := context.Background()

	root := writeTree(t, map[string]string{"forms/grant.js": "new content"})
	_, err = s.SeedWebResource(ctx, "akoyago_/forms/grant.js",
		registration.WebResourceJavaScript, []byte("old content"), true)
	require.NoError(t, err)

	resources, err := Discover(root, "akoyago_/", nil)
	require.NoError(t, err)

	report := &reconcile.Report{}
	checker := NewChecker(s, report)
	checker.Fix = true
	checker.Run(ctx, resources)

	assert.False(t, report.Failed())
	require.Len(t, report.Fixes, 1)

	res, err := s.WebResourceByName(ctx, "akoyago_/forms/grant.js")
	require.NoError(t, err)
	assert.Equal(t, []byte("new content"), res.Content,
		"layered resource updated after the layer strip")
}

func TestCheckerMissingResourceIsFailure(t *testing.T) {
	s, err := local.Open(":memory:")
	require.NoError(t, err)

	root := writeTree(t, map[string]string{"forms/grant.js": "content"})
	resources, err := Discover(root, "akoyago_/", nil)
	require.NoError(t, err)

	report := &reconcile.Report{}
	NewChecker(s, report).Run(context.Background(), resources)

	assert.True(t, report.Failed())
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "not found in target environment")
}

func TestCheckerTypeMismatchIsFailure(t *testing.T) {
	s, err := local.Open(":memory:")
	require.NoError(t, err)
	ctx := context.Background()

	root := writeTree(t, map[string]string{"forms/grant.js": "content"})
	_, err = s.SeedWebResource(ctx, "akoyago_/forms/grant.js",
		registration.WebResourceHTML, []byte("content"), false)
	require.NoError(t, err)

	resources, err := Discover(root, "akoyago_/", nil)
	require.NoError(t, err)

	report := &reconcile.Report{}
	NewChecker(s, report).Run(ctx, resources)

	assert.True(t, report.Failed())
	assert.Contains(t, report.Failures[0], "type mismatch")
}
