//go:build unix

package registration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withFakeHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	old, hadOld := os.LookupEnv("HOME")
	require.NoError(t, os.Setenv("HOME", home))
	t.Cleanup(func() {
		if hadOld {
			_ = os.Setenv("HOME", old)
		} else {
			_ = os.Unsetenv("HOME")
		}
	})
	return home
}

func withFakeSystemctl(t *testing.T) *[][]string {
	t.Helper()
	var calls [][]string
	old := runSystemctl
	runSystemctl = func(args ...string) ([]byte, error) {
		calls = append(calls, append([]string(nil), args...))
		return nil, nil
	}
	t.Cleanup(func() { runSystemctl = old })
	return &calls
}

func TestRegisterWritesUnitFileAndEnablesIt(t *testing.T) {
	home := withFakeHome(t)
	calls := withFakeSystemctl(t)

	require.NoError(t, Register("/usr/local/bin/profiler-collectorctl"))

	path := filepath.Join(home, ".config", "systemd", "user", unitName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "ExecStart=/usr/local/bin/profiler-collectorctl")

	require.Len(t, *calls, 2)
	require.Equal(t, []string{"--user", "daemon-reload"}, (*calls)[0])
	require.Equal(t, []string{"--user", "enable", "--now", unitName}, (*calls)[1])
}

func TestRegisterFailureWrapsAsHRESULTLikeError(t *testing.T) {
	withFakeHome(t)
	old := runSystemctl
	runSystemctl = func(args ...string) ([]byte, error) {
		return []byte("unit not found"), errors.New("exit status 1")
	}
	t.Cleanup(func() { runSystemctl = old })

	err := Register("/bin/collector")
	require.Error(t, err)
	require.Contains(t, err.Error(), "0x00000000")
}

func TestUnregisterRemovesUnitFile(t *testing.T) {
	home := withFakeHome(t)
	withFakeSystemctl(t)

	require.NoError(t, Register("/bin/collector"))
	path := filepath.Join(home, ".config", "systemd", "user", unitName)
	require.FileExists(t, path)

	require.NoError(t, Unregister())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestUnregisterWithoutPriorRegisterIsNotAnError(t *testing.T) {
	withFakeHome(t)
	withFakeSystemctl(t)
	require.NoError(t, Unregister())
}
