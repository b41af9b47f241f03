package testcase_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlspipe/tlspipe/internal/testcase"
)

// TestParseBasic tests basic YAML test case parsing.
func TestParseBasic(t *testing.T) {
	yaml := `
name: Local Redis
host: localhost
port: 6380
password: secret
use_tls: true
server_name: redis.test
min_version: "1.2"
max_version: "1.3"
fingerprint: chrome
commands:
  - PING
  - INFO server
timeout: 2s
`
	tc, err := testcase.ParseTestCase([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to parse test case: %v", err)
	}

	if tc.Name != "Local Redis" {
		t.Errorf("Name mismatch: expected 'Local Redis', got %s", tc.Name)
	}
	if tc.Address() != "localhost:6380" {
		t.Errorf("Address mismatch: expected localhost:6380, got %s", tc.Address())
	}
	if !tc.UseTLS {
		t.Errorf("UseTLS should be true")
	}
	if len(tc.Commands) != 2 || tc.Commands[1] != "INFO server" {
		t.Errorf("Commands mismatch: %v", tc.Commands)
	}

	d, err := tc.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestParseServiceTarget(t *testing.T) {
	tc, err := testcase.ParseTestCase([]byte("service: _redis._tcp\ninstance: cache\n"))
	require.NoError(t, err)

	assert.Empty(t, tc.Address())
	assert.Equal(t, "cache", tc.DisplayName())

	d, err := tc.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, testcase.DefaultTimeout, d)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"NoTarget", "name: nothing\n"},
		{"BadPort", "host: localhost\nport: 70000\n"},
		{"MissingPort", "host: localhost\n"},
		{"CertWithoutTLS", "host: h\nport: 1\ncertificate: client.pem\n"},
		{"BadVersion", "host: h\nport: 1\nuse_tls: true\nmin_version: \"2.0\"\n"},
		{"BadFingerprint", "host: h\nport: 1\nuse_tls: true\nfingerprint: netscape\n"},
		{"BadTimeout", "host: h\nport: 1\ntimeout: soon\n"},
		{"NegativeTimeout", "host: h\nport: 1\ntimeout: -1s\n"},
		{"WrongType", "host: h\nport: many\n"},
		{"NotYAML", "host: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testcase.ParseTestCase([]byte(tt.yaml))
			var le *testcase.LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %v", err)
			}
		})
	}
}

func TestLoadTestCaseResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.yaml")
	content := "host: h\nport: 6380\nuse_tls: true\ncertificate: certs/client.p12\nca_file: /etc/ca.pem\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tc, err := testcase.LoadTestCase(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "certs", "client.p12"), tc.Certificate)
	assert.Equal(t, "/etc/ca.pem", tc.CAFile)
	assert.Equal(t, path, tc.File)
}

func TestLoadTestCaseErrorCarriesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0o600))

	_, err := testcase.LoadTestCase(path)
	var le *testcase.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, path, le.File)
	assert.Contains(t, err.Error(), path)

	_, err = testcase.LoadTestCase(filepath.Join(dir, "missing.yaml"))
	require.True(t, errors.As(err, &le))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.yaml":    "name: second\nhost: h\nport: 2\n",
		"a.yml":     "name: first\nhost: h\nport: 1\n",
		"notes.txt": "ignored",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	cases, err := testcase.LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "first", cases[0].Name)
	assert.Equal(t, "second", cases[1].Name)
}

func TestLoadDirectoryMissing(t *testing.T) {
	_, err := testcase.LoadDirectory(filepath.Join(t.TempDir(), "nope"))
	var le *testcase.LoadError
	assert.True(t, errors.As(err, &le))
}

func TestLoadErrorFormat(t *testing.T) {
	err := &testcase.LoadError{File: "a.yaml", Line: 12, Message: "bad", Cause: errors.New("cause")}
	assert.Equal(t, "a.yaml:12: bad: cause", err.Error())

	err = &testcase.LoadError{File: "a.yaml", Message: "bad"}
	assert.Equal(t, "a.yaml: bad", err.Error())
}
