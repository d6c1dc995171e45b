package configcmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/8gabri8/TST-bioimage/internal/conf"
)

func TestShowMasksCredentials(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.MQTT.Password = "hunter2"
	settings.Output.Report = "output.csv"

	var out bytes.Buffer
	cmd := showCommand(settings)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.NotContains(t, out.String(), "hunter2")
	var shown conf.Settings
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, "output.csv", shown.Output.Report)
}

func TestValidateReportsErrors(t *testing.T) {
	t.Parallel()

	cmd := validateCommand(&conf.Settings{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	var ve conf.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Errors)
}

func TestSaveWritesFile(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Output.Report = "report.csv"
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	cmd := saveCommand(settings)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)
	assert.FileExists(t, path)
}
