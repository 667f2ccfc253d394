package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func field(t *testing.T, out, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	t.Fatalf("no %q line in output:\n%s", prefix, out)
	return ""
}

func TestProveThenVerify(t *testing.T) {
	receiptPath := filepath.Join(t.TempDir(), "receipt.json")

	code, out, stderr := runCLI(t, "-log-level", "error", "prove", "-out", receiptPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Verification: ")
	assert.Contains(t, out, "receipt verified")

	image := field(t, out, "image:")
	key := field(t, out, "prover key:")

	code, out, stderr = runCLI(t, "verify", "-receipt", receiptPath, "-prover-key", key, "-image", image)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `message:       "This is a test of the tsunami alert system."`)
	assert.Contains(t, out, "receipt verified for image "+image)
}

func TestVerifyRejects(t *testing.T) {
	dir := t.TempDir()
	receiptPath := filepath.Join(dir, "receipt.json")

	code, out, stderr := runCLI(t, "-log-level", "error", "prove", "-message", "all clear", "-out", receiptPath)
	require.Equal(t, 0, code, stderr)
	key := field(t, out, "prover key:")

	t.Run("other image", func(t *testing.T) {
		other := strings.Repeat("00", 40)
		code, _, stderr := runCLI(t, "verify", "-receipt", receiptPath, "-prover-key", key, "-image", other)
		assert.Equal(t, 3, code)
		assert.Contains(t, stderr, "ERROR")
	})

	t.Run("other prover", func(t *testing.T) {
		code, _, _ := runCLI(t, "verify", "-receipt", receiptPath, "-prover-key", strings.Repeat("ab", 32))
		assert.Equal(t, 3, code)
	})

	t.Run("tampered journal", func(t *testing.T) {
		data, err := os.ReadFile(receiptPath)
		require.NoError(t, err)
		tampered := bytes.Replace(data, []byte(`"journal":"`), []byte(`"journal":"AA`), 1)
		path := filepath.Join(dir, "tampered.json")
		require.NoError(t, os.WriteFile(path, tampered, 0o644))

		code, _, _ := runCLI(t, "verify", "-receipt", path, "-prover-key", key)
		assert.NotEqual(t, 0, code)
	})

	t.Run("missing flags", func(t *testing.T) {
		code, _, _ := runCLI(t, "verify", "-receipt", receiptPath)
		assert.Equal(t, 2, code)
	})

	t.Run("bad key", func(t *testing.T) {
		code, _, _ := runCLI(t, "verify", "-receipt", receiptPath, "-prover-key", "zz")
		assert.Equal(t, 1, code)
	})
}

func TestBench(t *testing.T) {
	code, out, stderr := runCLI(t, "-log-level", "error", "bench")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "\nField operations:\n")
	assert.Contains(t, out, "\nScalar operations:\n")
	assert.Contains(t, out, "\nGroup operations:\nvartime_double_scalar_mul_basepoint: ")
	assert.Contains(t, out, "mul_single: ")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("log_level: error\nmax_input_bytes: 4096\n"), 0o644))
	code, _, stderr := runCLI(t, "-config", good, "prove")
	assert.Equal(t, 0, code, stderr)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("no_such_field: 1\n"), 0o644))
	code, _, stderr = runCLI(t, "-config", bad, "prove")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid config")
}

func TestUsageErrors(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, _, _ = runCLI(t, "-log-level", "loud", "bench")
	assert.Equal(t, 1, code)

	code, _, _ = runCLI(t, "prove", "-nope")
	assert.Equal(t, 2, code)
}
