package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// UpdateGoldenEnv is the environment variable which, when set, rewrites the golden files from the test results.
const UpdateGoldenEnv = "TESTS_UPDATE_GOLDEN"

type goldenOptions struct {
	path string
}

// GoldenOption overrides the default golden file lookup.
type GoldenOption func(*goldenOptions)

// WithGoldenPath reads and writes the golden file at path instead of the one derived from the test name.
func WithGoldenPath(path string) GoldenOption {
	return func(o *goldenOptions) {
		if path != "" {
			o.path = path
		}
	}
}

// LoadWithUpdateFromGolden returns the content of the golden file of the test.
// When TESTS_UPDATE_GOLDEN is set, data is first written to it.
func LoadWithUpdateFromGolden(t *testing.T, data string, opts ...GoldenOption) string {
	t.Helper()

	o := goldenOptions{path: GoldenPath(t)}
	for _, opt := range opts {
		opt(&o)
	}

	if os.Getenv(UpdateGoldenEnv) != "" {
		t.Logf("updating golden file %s", o.path)
		require.NoError(t, os.MkdirAll(filepath.Dir(o.path), 0750), "Cannot create directory for updating golden files")
		require.NoError(t, os.WriteFile(o.path, []byte(data), 0600), "Cannot write golden file")
	}

	want, err := os.ReadFile(o.path)
	require.NoError(t, err, "Cannot load golden file")

	return string(want)
}

// LoadWithUpdateFromGoldenYAML returns the golden file of the test deserialized from YAML into the type of got.
// When TESTS_UPDATE_GOLDEN is set, got is first serialized to it.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, got E, opts ...GoldenOption) E {
	t.Helper()

	y, err := yaml.Marshal(got)
	require.NoError(t, err, "Cannot serialize provided object")
	want := LoadWithUpdateFromGolden(t, string(y), opts...)

	var wantDeserialized E
	require.NoError(t, yaml.Unmarshal([]byte(want), &wantDeserialized), "Cannot deserialize golden file")

	return wantDeserialized
}

// GoldenPath returns the golden file path of the test: testdata/golden/<test name>, subtests being nested
// directories.
func GoldenPath(t *testing.T) string {
	t.Helper()

	return filepath.Join("testdata", "golden", filepath.FromSlash(t.Name()))
}
