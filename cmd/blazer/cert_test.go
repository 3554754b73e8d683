package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCertGenerate(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configDir := t.TempDir()
	cmd := certGenerateCmd(&configDir)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCertGenerate(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	out, err := runCertGenerate(t, "--cert", certFile, "--key", keyFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, certFile)
	assert.FileExists(t, keyFile)

	first, err := os.ReadFile(certFile)
	require.NoError(t, err)

	_, err = runCertGenerate(t, "--cert", certFile, "--key", keyFile)
	require.Error(t, err, "existing files are kept without --force")
	kept, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, first, kept)

	_, err = runCertGenerate(t, "--cert", certFile, "--key", keyFile, "--force")
	require.NoError(t, err)
	replaced, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.NotEqual(t, first, replaced)
}
