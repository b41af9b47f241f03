package testcase

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tlspipe/tlspipe/pkg/engine"
)

// ParseTestCase parses a test case from YAML bytes.
func ParseTestCase(data []byte) (*TestCase, error) {
	var tc TestCase
	if err := yaml.Unmarshal(data, &tc); err != nil {
		le := &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
		var te *yaml.TypeError
		if errors.As(err, &te) {
			le.Message = "invalid field type"
		}
		return nil, le
	}

	if err := validate(&tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

// validate checks required fields and value formats.
func validate(tc *TestCase) error {
	switch {
	case tc.Host == "" && tc.Service == "":
		return &LoadError{Message: "host or service is required"}
	case tc.Host != "" && (tc.Port <= 0 || tc.Port > 65535):
		return &LoadError{Message: "port must be between 1 and 65535"}
	}

	if tc.Certificate != "" && !tc.UseTLS {
		return &LoadError{Message: "certificate requires use_tls"}
	}

	for _, v := range []string{tc.MinVersion, tc.MaxVersion} {
		if v == "" {
			continue
		}
		if _, err := engine.ParseVersion(v); err != nil {
			return &LoadError{Message: "invalid TLS version", Cause: err}
		}
	}

	if tc.Fingerprint != "" {
		known := false
		for _, f := range engine.Fingerprints() {
			if strings.EqualFold(f, tc.Fingerprint) {
				known = true
				break
			}
		}
		if !known {
			return &LoadError{Message: "unknown fingerprint " + tc.Fingerprint}
		}
	}

	if _, err := tc.TimeoutDuration(); err != nil {
		return &LoadError{Message: "invalid timeout", Cause: err}
	}
	return nil
}

// LoadTestCase loads a test case from a file. Relative certificate and
// CA paths are resolved against the file's directory.
func LoadTestCase(path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	tc, err := ParseTestCase(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{
			File:    path,
			Message: err.Error(),
		}
	}

	dir := filepath.Dir(path)
	tc.Certificate = resolve(dir, tc.Certificate)
	tc.CAFile = resolve(dir, tc.CAFile)
	tc.File = path

	return tc, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// LoadDirectory loads all test cases from a directory, sorted by file
// name. Only files with .yaml or .yml extensions are loaded.
func LoadDirectory(dir string) ([]*TestCase, error) {
	var cases []*TestCase

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		tc, err := LoadTestCase(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		cases = append(cases, tc)
	}

	return cases, nil
}
