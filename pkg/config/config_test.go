package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoordHostAndPortPrecedence(t *testing.T) {
	os.Unsetenv(envCoordHost)
	os.Unsetenv(envHostDeprecated)
	os.Unsetenv(envCoordPort)
	os.Unsetenv(envPortDeprecated)

	host, port := CoordHostAndPort("", 0)
	require.Equal(t, DefaultHost, host)
	require.Equal(t, DefaultPort, port)

	os.Setenv(envHostDeprecated, "10.0.0.1")
	defer os.Unsetenv(envHostDeprecated)
	host, _ = CoordHostAndPort("", 0)
	require.Equal(t, "10.0.0.1", host)

	os.Setenv(envCoordHost, "10.0.0.2")
	defer os.Unsetenv(envCoordHost)
	host, _ = CoordHostAndPort("", 0)
	require.Equal(t, "10.0.0.2", host, "canonical var wins over deprecated alias")

	host, _ = CoordHostAndPort("10.0.0.3", 0)
	require.Equal(t, "10.0.0.3", host, "explicit flag wins over everything")
}

func TestCkptSignalClamped(t *testing.T) {
	os.Unsetenv(envSigCkpt)
	require.Equal(t, DefaultCkptSignal, CkptSignal())

	os.Setenv(envSigCkpt, "12")
	defer os.Unsetenv(envSigCkpt)
	require.Equal(t, 12, CkptSignal())

	os.Setenv(envSigCkpt, "99")
	require.Equal(t, DefaultCkptSignal, CkptSignal())
}

func TestQuietLevel(t *testing.T) {
	os.Unsetenv(envQuiet)
	require.Equal(t, 0, QuietLevel())

	os.Setenv(envQuiet, "2")
	defer os.Unsetenv(envQuiet)
	require.Equal(t, 2, QuietLevel())
}
