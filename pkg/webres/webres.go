// Package webres verifies that deployed HTML and JavaScript web resources
// match their local source files, and optionally pushes drifted content.
// Resources protected by an unmanaged solution layer get the layer stripped
// before the content update, since a layered update would otherwise not take
// effect.
package webres

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/akoyago/deployctl/pkg/reconcile"
	"github.com/akoyago/deployctl/pkg/registration"
	"github.com/akoyago/deployctl/pkg/store"
)

// LocalResource pairs a deployed resource name with its local source file.
type LocalResource struct {
	Name string
	Path string
	Type registration.WebResourceType
}

// typeForExtension maps the managed file extensions to resource types.
// Everything else is outside the HTML/JS subset and is skipped.
func typeForExtension(p string) (registration.WebResourceType, bool) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".html", ".htm":
		return registration.WebResourceHTML, true
	case ".js":
		return registration.WebResourceJavaScript, true
	}
	return 0, false
}

// Discover walks root and returns the local resources whose deployed name
// (prefix + slash-separated relative path) matches one of the inclusion
// patterns. Files outside the HTML/JS subset are ignored.
func Discover(root, prefix string, patterns []string) ([]LocalResource, error) {
	var resources []LocalResource
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		resourceType, ok := typeForExtension(p)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := prefix + filepath.ToSlash(rel)
		if !matchesAny(name, patterns) {
			glog.V(2).Infof("webres: %s excluded by patterns", name)
			return nil
		}
		resources = append(resources, LocalResource{Name: name, Path: p, Type: resourceType})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("webres: discover %s: %w", root, err)
	}
	return resources, nil
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Checker compares local resources against the environment.
type Checker struct {
	store  store.WebResourceStore
	report *reconcile.Report
	// Fix pushes drifted content instead of only reporting it.
	Fix bool
}

// NewChecker creates a Checker writing outcomes into the given report.
func NewChecker(s store.WebResourceStore, report *reconcile.Report) *Checker {
	return &Checker{store: s, report: report}
}

// Run verifies each resource in order. Per-resource store errors are recorded
// and the run continues.
func (c *Checker) Run(ctx context.Context, resources []LocalResource) {
	for _, res := range resources {
		c.check(ctx, res)
	}
}

func (c *Checker) check(ctx context.Context, res LocalResource) {
	content, err := os.ReadFile(res.Path)
	if err != nil {
		c.report.AddFailure("web resource %q: read %s: %v", res.Name, res.Path, err)
		return
	}

	observed, err := c.store.WebResourceByName(ctx, res.Name)
	if err != nil {
		c.report.AddFailure("web resource %q: lookup failed: %v", res.Name, err)
		return
	}
	if observed == nil {
		c.report.AddFailure("web resource %q: not found in target environment", res.Name)
		return
	}
	if observed.Type != res.Type {
		c.report.AddFailure("web resource %q: type mismatch: local %d, observed %d",
			res.Name, res.Type, observed.Type)
		return
	}

	if bytes.Equal(content, observed.Content) {
		glog.V(1).Infof("webres: %s in sync (%x)", res.Name, sha256.Sum256(content))
		c.report.AddSuccess()
		return
	}

	if !c.Fix {
		c.report.AddWarning("web resource %q: content differs (local %x, observed %x)",
			res.Name, shortHash(content), shortHash(observed.Content))
		return
	}

	// Strip the unmanaged layer first; a layered resource silently ignores
	// content updates.
	if err := c.store.RemoveActiveLayer(ctx, observed.ID); err != nil {
		c.report.AddFailure("web resource %q: remove active layer failed: %v", res.Name, err)
		return
	}
	if err := c.store.UpdateWebResourceContent(ctx, observed.ID, content); err != nil {
		c.report.AddFailure("web resource %q: content update failed: %v", res.Name, err)
		return
	}
	c.report.AddFix("updated web resource %q content", res.Name)
}

func shortHash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:8]
}
