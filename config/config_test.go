package config

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gopkg.in/guregu/null.v3"
)

func TestDefault(t *testing.T) {
	o := Default()
	require.NoError(t, o.Validate())
	assert.EqualValues(t, 100, o.MaxNestedDepth.Int64)
	assert.False(t, o.MaxNestedDepth.Valid, "defaults are not explicitly set")
	assert.True(t, o.PreferTypeIDs.Bool)
}

func TestApply(t *testing.T) {
	o := Default().Apply(Options{
		MaxNestedDepth: null.IntFrom(8),
		LogLevel:       null.StringFrom(""),
		PreferTypeIDs:  null.BoolFrom(false),
	})
	assert.EqualValues(t, 8, o.MaxNestedDepth.Int64)
	assert.Equal(t, "info", o.LogLevel.String, "empty strings do not override")
	assert.False(t, o.PreferTypeIDs.Bool)
}

func TestLoadLayers(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "protostream.json",
		[]byte(`{"maxNestedDepth": 20, "logLevel": "debug", "lockFile": "schemas.lock"}`), 0o644))

	o, err := Load(fs, "protostream.json", map[string]string{
		"PROTOSTREAM_MAX_NESTED_DEPTH": "30",
		"PROTOSTREAM_LOG_FORMAT":       "console",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 30, o.MaxNestedDepth.Int64, "env wins over the file")
	assert.Equal(t, "debug", o.LogLevel.String)
	assert.Equal(t, "schemas.lock", o.LockFile.String)
	assert.Equal(t, "console", o.LogFormat.String)
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.json", []byte(`{"maxNestedDepth": "x"}`), 0o644))

	_, err := Load(fs, "bad.json", map[string]string{})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = Load(fs, "", map[string]string{"PROTOSTREAM_MAX_NESTED_DEPTH": "zero"})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = Load(fs, "", map[string]string{"PROTOSTREAM_MAX_NESTED_DEPTH": "0"})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = Load(fs, "", map[string]string{"PROTOSTREAM_LOG_FORMAT": "xml"})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = Load(fs, "missing.json", nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	o := Default().Apply(Options{LogLevel: null.StringFrom("warn")})
	logger, err := o.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("file", "a.proto").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	entry := gjson.ParseBytes(lines[0])
	assert.Equal(t, "warn", entry.Get("level").String())
	assert.Equal(t, "shown", entry.Get("message").String())
	assert.Equal(t, "a.proto", entry.Get("file").String())
	assert.Equal(t, "protostream", entry.Get("component").String())
}
