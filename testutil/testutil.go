// Package testutil provides common testing utilities for dedupe
package testutil

import (
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TempDir creates a temporary directory for testing
func TempDir(t *testing.T, prefix string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	// MkdirTemp may hand out a path below a symlinked tmp dir
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	t.Cleanup(func() {
		// Tests may revoke permissions; restore them so cleanup can proceed
		_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				_ = os.Chmod(path, 0o755)
			}
			return nil
		})
		if err := os.RemoveAll(dir); err != nil {
			t.Errorf("Failed to clean up temp dir %s: %v", dir, err)
		}
	})

	return dir
}

// CreateTestFile creates a test file with specified content
func CreateTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	return CreateTestFileBytes(t, dir, filename, []byte(content))
}

// CreateTestFileBytes creates a test file holding data
func CreateTestFileBytes(t *testing.T, dir, filename string, data []byte) string {
	t.Helper()
	filePath := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		t.Fatalf("Failed to create directory for test file: %v", err)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}

	return filePath
}

// CreateTestFileWithSize creates a test file of the given size whose content
// is determined by seed, so equal seeds give identical files.
func CreateTestFileWithSize(t *testing.T, dir, filename string, size int64, seed int64) string {
	t.Helper()
	filePath := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		t.Fatalf("Failed to create directory for test file: %v", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}
	defer file.Close()

	written, err := io.CopyN(file, rand.New(rand.NewSource(seed)), size)
	if err != nil {
		t.Fatalf("Failed to write test data to %s: %v", filePath, err)
	}

	if written != size {
		t.Fatalf("Expected to write %d bytes, but wrote %d", size, written)
	}

	return filePath
}

// CreateTree writes every relative path in files under root.
func CreateTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		CreateTestFile(t, root, rel, content)
	}
}

// SkipIfRoot skips tests that depend on permission checks being enforced
func SkipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("Skipping test when running as root: permissions are not enforced")
	}
}

// AssertFileExists checks if a file exists and fails the test if it doesn't
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		t.Fatalf("Expected file %s to exist, but it doesn't", path)
	}
}

// AssertFileNotExists checks if a file doesn't exist and fails the test if it does
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Fatalf("Expected file %s to not exist, but it does", path)
	}
}

// AssertDirExists checks if a directory exists and fails the test if it doesn't
func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Fatalf("Expected directory %s to exist, but it doesn't", path)
	}
	if err != nil {
		t.Fatalf("Error checking directory %s: %v", path, err)
	}
	if !info.IsDir() {
		t.Fatalf("Expected %s to be a directory, but it's not", path)
	}
}

// AssertRegularFile checks that path is a regular file and not a symlink
func AssertRegularFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Failed to lstat %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		t.Fatalf("Expected %s to be a regular file, got mode %v", path, info.Mode())
	}
}

// AssertSymlink checks that path is a symlink and returns the file it resolves to
func AssertSymlink(t *testing.T, path string) string {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Failed to lstat %s: %v", path, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("Expected %s to be a symlink, got mode %v", path, info.Mode())
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("Symlink %s does not resolve: %v", path, err)
	}
	return resolved
}

// AssertFileContains checks if a file contains specific content
func AssertFileContains(t *testing.T, path, expectedContent string) {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}

	if !strings.Contains(string(content), expectedContent) {
		t.Fatalf("File %s does not contain expected content '%s'", path, expectedContent)
	}
}

// AssertSameContent checks that two paths read back identical bytes
func AssertSameContent(t *testing.T, a, b string) {
	t.Helper()
	da, err := os.ReadFile(a)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", a, err)
	}
	db, err := os.ReadFile(b)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", b, err)
	}
	if !bytes.Equal(da, db) {
		t.Fatalf("Content of %s and %s differs", a, b)
	}
}

// AssertFileSize checks if a file has the expected size
func AssertFileSize(t *testing.T, path string, expectedSize int64) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat file %s: %v", path, err)
	}

	if info.Size() != expectedSize {
		t.Fatalf("File %s has size %d, expected %d", path, info.Size(), expectedSize)
	}
}

// CountFiles returns the number of regular files below dir
func CountFiles(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("Failed to walk %s: %v", dir, err)
	}
	return count
}

// CaptureOutput captures stdout/stderr for testing CLI commands
func CaptureOutput(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create stdout pipe: %v", err)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create stderr pipe: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	stdoutCh := make(chan string)
	stderrCh := make(chan string)

	go func() {
		defer close(stdoutCh)
		output, _ := io.ReadAll(stdoutR)
		stdoutCh <- string(output)
	}()

	go func() {
		defer close(stderrCh)
		output, _ := io.ReadAll(stderrR)
		stderrCh <- string(output)
	}()

	fn()

	stdoutW.Close()
	stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdout = <-stdoutCh
	stderr = <-stderrCh

	stdoutR.Close()
	stderrR.Close()

	return stdout, stderr
}

// SkipIfShort skips the test if running in short mode
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
