package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/config"
	"github.com/ServanKorkmaz/mail-automation/internal/store"
)

const sampleCSV = "name,website,email,contacted\n" +
	"Zeta Okulu,unknown,,no\n" +
	"Alpha School,https://alpha.k12.tr,info@alpha.k12.tr,no\n" +
	"Beta School,https://beta.k12.tr,NOT FOUND,no\n"

func withTestApp(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schools.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Data.CSVPath = path

	original := newApp
	newApp = func(string, string) (*App, error) {
		return &App{Config: cfg, Logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { newApp = original })
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	withTestApp(t)

	out, err := execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total schools")
	assert.Contains(t, out, "READY TO CONTACT")
}

func TestResetCommand(t *testing.T) {
	path := withTestApp(t)

	_, err := execute(t, "reset")
	require.Error(t, err)

	out, err := execute(t, "reset", "--websites-unknown", "--emails-not-found")
	require.NoError(t, err)
	assert.Contains(t, out, "reset 2 record(s)")

	st, err := store.Open(path, nil)
	require.NoError(t, err)
	zeta, ok := st.Get("Zeta Okulu")
	require.True(t, ok)
	assert.Empty(t, zeta.Website)
	beta, ok := st.Get("Beta School")
	require.True(t, ok)
	assert.Empty(t, beta.Email)
	assert.Equal(t, "https://beta.k12.tr", beta.Website)
}

func TestReorganizeCommand(t *testing.T) {
	path := withTestApp(t)

	_, err := execute(t, "reorganize")
	require.NoError(t, err)

	st, err := store.Open(path, nil)
	require.NoError(t, err)
	records := st.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "Alpha School", records[0].Name)
	assert.Equal(t, "Beta School", records[1].Name)
	assert.Equal(t, "Zeta Okulu", records[2].Name)
}

func TestSendCommandDryRunLeavesRecordsUncontacted(t *testing.T) {
	path := withTestApp(t)

	_, err := execute(t, "send", "--dry-run")
	require.NoError(t, err)

	st, err := store.Open(path, nil)
	require.NoError(t, err)
	alpha, ok := st.Get("Alpha School")
	require.True(t, ok)
	assert.Equal(t, "no", string(alpha.Contacted))
}
