package wsl

import (
	"os"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wslbridge/wsl/lxss"
)

func TestNewWithoutServiceReportsUnsupportedPlatform(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("default activation depends on the host service on windows")
	}
	t.Parallel()

	_, err := New()
	require.Error(t, err)
	assert.Equal(t, lxss.KindUnsupportedPlatform, lxss.KindOf(err))
}

func TestEnumerateDistributionsReturnsSessionSnapshot(t *testing.T) {
	t.Parallel()

	want := []lxss.Distribution{
		{ID: uuid.New(), Name: "Ubuntu", Version: lxss.VersionWSL2},
		{ID: uuid.New(), Name: "Debian", Version: lxss.VersionWSL1},
	}
	session := &fakeSession{distros: want}
	client := newTestClient(t, session)

	got, err := client.EnumerateDistributions()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetDefaultDistribution(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	client := newTestClient(t, &fakeSession{defaultDistro: id})

	got, err := client.GetDefaultDistribution()
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestExportDistributionRejectsWrongHandleTypesLocally(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	client := newTestClient(t, session)

	file, err := os.CreateTemp(t.TempDir(), "distro-*.tar")
	require.NoError(t, err)
	defer file.Close()

	// A character device where a pipe is required must be rejected
	// before the service is entered.
	devNull, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer devNull.Close()

	err = client.ExportDistribution(uuid.New(), file, devNull, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid usage")
	assert.Zero(t, session.exportCalls.Load(), "service must not see invalid handles")
}

func TestExportDistributionForwardsValidHandles(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	client := newTestClient(t, session)

	file, err := os.CreateTemp(t.TempDir(), "distro-*.tar")
	require.NoError(t, err)
	defer file.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, client.ExportDistribution(uuid.New(), file, w, 0))
	assert.Equal(t, int32(1), session.exportCalls.Load())
}
