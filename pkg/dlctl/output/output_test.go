package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{
		"":      FormatTable,
		"table": FormatTable,
		"JSON":  FormatJSON,
		" yaml": FormatYAML,
	} {
		got, err := ParseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteObject(t *testing.T) {
	obj := struct {
		Name string `json:"name" yaml:"name"`
	}{Name: "prod"}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteObject(buf, FormatJSON, obj))
	assert.JSONEq(t, `{"name":"prod"}`, buf.String())

	buf.Reset()
	require.NoError(t, WriteObject(buf, FormatYAML, obj))
	assert.Equal(t, "name: prod\n", buf.String())

	assert.Error(t, WriteObject(buf, FormatTable, obj))
	assert.Error(t, WriteObject(buf, Format("xml"), obj))
}
