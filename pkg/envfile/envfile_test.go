package envfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	data := []byte("HOME=/new\nHOST=\"a b\"\nEDITOR\nFOO=$HOME/x\n")

	ops, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, []Op{
		{Name: "HOME", Value: "/new"},
		{Name: "HOST", Value: "a b"},
		{Name: "EDITOR", Unset: true},
		{Name: "FOO", Value: "/new/x"},
	}, ops)
}

func TestApplyIdempotent(t *testing.T) {
	os.Setenv("HOME", "/old")
	os.Setenv("EDITOR", "vi")
	defer os.Unsetenv("HOME")
	defer os.Unsetenv("EDITOR")
	defer os.Unsetenv("HOST")
	defer os.Unsetenv("FOO")

	data := []byte("HOME=/new\nHOST=\"a b\"\nEDITOR\nFOO=$HOME/x\n")

	require.NoError(t, ParseAndApply(data))
	require.Equal(t, "/new", os.Getenv("HOME"))
	require.Equal(t, "a b", os.Getenv("HOST"))
	_, editorSet := os.LookupEnv("EDITOR")
	require.False(t, editorSet)
	require.Equal(t, "/new/x", os.Getenv("FOO"))

	// Re-applying must produce the same environment.
	require.NoError(t, ParseAndApply(data))
	require.Equal(t, "/new", os.Getenv("HOME"))
	require.Equal(t, "a b", os.Getenv("HOST"))
	require.Equal(t, "/new/x", os.Getenv("FOO"))
}

func TestCommentsAndBlankLines(t *testing.T) {
	data := []byte("# a comment\n\nFOO=bar # trailing comment\n")
	ops, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, []Op{{Name: "FOO", Value: "bar"}}, ops)
}

func TestOversizeRejected(t *testing.T) {
	data := make([]byte, MaxFileSize+1)
	_, err := Parse(data)
	require.Error(t, err)
}
