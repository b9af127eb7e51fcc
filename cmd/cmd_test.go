package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engineercoding/dedupe/internal/config"
	"github.com/engineercoding/dedupe/internal/deduplication"
	"github.com/engineercoding/dedupe/testutil"
)

func init() {
	color.NoColor = true
}

// execute runs the command tree quietly with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeRaw(t, stdin, append([]string{"--quiet"}, args...)...)
}

func executeRaw(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func duplicateTree(t *testing.T) (root, a, b string) {
	t.Helper()
	root = testutil.TempDir(t, "cmd")
	a = testutil.CreateTestFile(t, root, "a/file.txt", "duplicate body")
	b = testutil.CreateTestFile(t, root, "b/file.txt", "duplicate body")
	return root, a, b
}

func TestAlgorithmsCommand(t *testing.T) {
	out, err := execute(t, "", "algorithms")
	require.NoError(t, err)
	for _, name := range []string{"blake3", "xxh3", "sha256", "crc32", "adler32", "fletcher16", "fletcher32", "fletcher64"} {
		assert.Contains(t, out, name)
	}
}

func TestRunCommandLinksDuplicates(t *testing.T) {
	root, a, b := duplicateTree(t)

	_, err := execute(t, "", "run", root, "--yes")
	require.NoError(t, err)

	object := testutil.AssertSymlink(t, a)
	assert.Equal(t, object, testutil.AssertSymlink(t, b))
	assert.True(t, strings.HasPrefix(object, filepath.Join(root, ".dedupe", "objects", "blake3")), "object %s", object)
}

func TestRunCommandPromptDeclined(t *testing.T) {
	root, a, _ := duplicateTree(t)

	out, err := execute(t, "n\n", "run", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")
	testutil.AssertRegularFile(t, a)
}

func TestRunCommandPromptAccepted(t *testing.T) {
	root, a, _ := duplicateTree(t)

	_, err := execute(t, "y\n", "run", root, "--relative-links")
	require.NoError(t, err)
	target, err := os.Readlink(a)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(target))
}

func TestRunCommandDryRun(t *testing.T) {
	root, a, _ := duplicateTree(t)

	_, err := execute(t, "", "run", root, "--dry-run")
	require.NoError(t, err)
	testutil.AssertRegularFile(t, a)
	testutil.AssertFileNotExists(t, filepath.Join(root, ".dedupe"))
}

func TestRunCommandDryRunListsPlannedLinks(t *testing.T) {
	root, a, b := duplicateTree(t)

	out, err := executeRaw(t, "", "run", root, "--dry-run", "--io-limit", "100MB")
	require.NoError(t, err)
	assert.Contains(t, out, "would link "+a)
	assert.Contains(t, out, "would link "+b)
	assert.Contains(t, out, "Dry run, nothing was changed")
	assert.Contains(t, out, "I/O limit:        100MB/s")
	testutil.AssertRegularFile(t, a)
	testutil.AssertRegularFile(t, b)
}

func TestRunCommandConfigFile(t *testing.T) {
	root, a, _ := duplicateTree(t)
	cfgPath := testutil.CreateTestFile(t, testutil.TempDir(t, "cfg"), "dedupe.yaml", "algorithm: xxh3\nworkers: 2\nindex: false\n")

	_, err := execute(t, "", "--config", cfgPath, "run", root, "--yes")
	require.NoError(t, err)
	object := testutil.AssertSymlink(t, a)
	assert.Contains(t, object, filepath.Join("objects", "xxh3"))
	testutil.AssertFileNotExists(t, filepath.Join(root, ".dedupe", "index.db"))
}

func TestConfigCommandWritesStoreConfig(t *testing.T) {
	root, a, _ := duplicateTree(t)
	storeRoot := filepath.Join(root, ".dedupe")

	out, err := executeRaw(t, "", "config", "--store", storeRoot, "--algorithm", "xxh3", "--no-index", "--exclude", "*.tmp")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote configuration to "+filepath.Join(storeRoot, "dedupe.yaml"))

	cfg, found, err := config.Load(filepath.Join(storeRoot, "dedupe.yaml"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "xxh3", cfg.Algorithm)
	assert.False(t, cfg.Index)
	assert.Equal(t, []string{"*.tmp"}, cfg.Exclude)

	// run picks the file up from the store
	_, err = execute(t, "", "run", root, "--yes")
	require.NoError(t, err)
	assert.Contains(t, testutil.AssertSymlink(t, a), filepath.Join("objects", "xxh3"))

	_, err = execute(t, "", "config", "--store", storeRoot, "--workers=0")
	assert.Error(t, err)
	_, err = execute(t, "", "config")
	assert.Error(t, err)
}

func TestRunCommandRejectsBadInput(t *testing.T) {
	root, _, _ := duplicateTree(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown algorithm", []string{"run", root, "--algorithm", "md5", "--yes"}},
		{"bad size", []string{"run", root, "--min-size", "lots", "--yes"}},
		{"missing root", []string{"run", filepath.Join(root, "absent"), "--yes"}},
		{"missing config", []string{"--config", filepath.Join(root, "none.yaml"), "run", root}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			assert.Error(t, err)
		})
	}

	_, err := execute(t, "", "run", root, "--algorithm", "md5", "--yes")
	assert.ErrorIs(t, err, deduplication.ErrFatalConfig)
}

func TestAddCommandReportsSkips(t *testing.T) {
	root, a, b := duplicateTree(t)
	storeRoot := filepath.Join(testutil.TempDir(t, "cmd-store"), "store")

	_, err := execute(t, "", "add", "--store", storeRoot, a, b)
	require.NoError(t, err)
	testutil.AssertSymlink(t, a)

	_, err = execute(t, "", "add", "--store", storeRoot, filepath.Join(root, "missing"))
	assert.True(t, errors.Is(err, errIncomplete), "err = %v", err)

	_, err = execute(t, "", "add", a)
	assert.Error(t, err)
}

func TestStoreCommands(t *testing.T) {
	root, _, _ := duplicateTree(t)
	storeRoot := filepath.Join(root, ".dedupe")
	_, err := execute(t, "", "run", root, "--yes")
	require.NoError(t, err)

	out, err := execute(t, "", "verify", "--store", storeRoot)
	require.NoError(t, err)
	assert.Contains(t, out, "Objects verified: 1")

	out, err = execute(t, "", "stats", "--store", storeRoot)
	require.NoError(t, err)
	assert.Contains(t, out, "Links:        2")

	out, err = execute(t, "", "recover", "--store", storeRoot, "--retention", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "Journal recovery")

	_, err = execute(t, "", "stats")
	assert.Error(t, err)
}
