// Package assembly handles plugin assembly re-registration: locating the
// assembly DLL (directly or inside a build archive), verifying its version
// expectation, and replacing the registered content. Assemblies are only ever
// mutated by content replacement, never deleted.
package assembly

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/golang/glog"

	"github.com/akoyago/deployctl/pkg/store"
)

// ErrDLLNotFound is returned when the build archive does not contain the
// assembly DLL.
var ErrDLLNotFound = errors.New("assembly DLL not found in archive")

// ContentFromPath loads the assembly binary. A .dll path is read directly; a
// .zip path is searched for <assemblyName>.dll anywhere in the archive.
func ContentFromPath(path, assemblyName string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dll":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("assembly: read %s: %w", path, err)
		}
		return data, nil
	case ".zip":
		return contentFromArchive(path, assemblyName)
	default:
		return nil, fmt.Errorf("assembly: %s: expected a .dll or .zip path", path)
	}
}

func contentFromArchive(path, assemblyName string) ([]byte, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("assembly: open archive %s: %w", path, err)
	}
	defer reader.Close()

	want := strings.ToLower(assemblyName) + ".dll"
	for _, file := range reader.File {
		if strings.ToLower(filepath.Base(file.Name)) != want {
			continue
		}
		glog.V(1).Infof("assembly: found %s in %s", file.Name, path)
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("assembly: open %s in archive: %w", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("assembly: read %s from archive: %w", file.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("assembly: %s: %w", path, ErrDLLNotFound)
}

// VerifyVersion checks the registered assembly version against the expected
// one. .NET four-part versions (1.2.3.4) are compared on their first three
// components; the revision is build metadata.
func VerifyVersion(expected, actual string) error {
	if expected == "" || expected == actual {
		return nil
	}
	ev, err := semver.NewVersion(normalizeVersion(expected))
	if err != nil {
		return fmt.Errorf("assembly: expected version %q is not parseable: %w", expected, err)
	}
	av, err := semver.NewVersion(normalizeVersion(actual))
	if err != nil {
		return fmt.Errorf("assembly: registered version %q is not parseable: %w", actual, err)
	}
	if !ev.Equal(av) {
		return fmt.Errorf("assembly: version mismatch: expected %s, registered %s", expected, actual)
	}
	return nil
}

// normalizeVersion converts a four-part .NET version to a three-part semver
// string with the revision as build metadata.
func normalizeVersion(v string) string {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) == 4 {
		return strings.Join(parts[:3], ".") + "+" + parts[3]
	}
	return strings.TrimSpace(v)
}

// Register replaces the registered content of the named assembly.
func Register(ctx context.Context, s store.AssemblyStore, name, expectedVersion string, content []byte) error {
	registered, err := s.AssemblyByName(ctx, name)
	if err != nil {
		return err
	}
	if registered == nil {
		return fmt.Errorf("assembly: %q is not registered in the target environment", name)
	}
	if err := VerifyVersion(expectedVersion, registered.Version); err != nil {
		return err
	}
	if err := s.UpdateAssemblyContent(ctx, registered.ID, content); err != nil {
		return fmt.Errorf("assembly: update content of %q: %w", name, err)
	}
	glog.Infof("assembly: replaced content of %q (%d bytes)", name, len(content))
	return nil
}
