package output

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	headers []string
	rows    [][]string
}

func (f fakeRenderer) Headers() []string { return f.headers }
func (f fakeRenderer) Rows() [][]string  { return f.rows }

func TestPrintTable(t *testing.T) {
	data := fakeRenderer{
		headers: []string{"Name", "Value"},
		rows: [][]string{
			{"key1", "value1"},
			{"key2", "value2"},
		},
	}

	var buf bytes.Buffer
	err := PrintTable(&buf, data, false)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "VALUE")
	assert.Contains(t, output, "key1")
	assert.Contains(t, output, "value1")
	assert.Contains(t, output, "key2")
	assert.Contains(t, output, "value2")
}

type styledRenderer struct {
	fakeRenderer
}

func (styledRenderer) RowColor(row []string) *color.Color {
	if len(row) > 0 && row[0] == "bad" {
		return color.New(color.FgRed)
	}
	return nil
}

func TestPrintTable_RowStylerColorsOnlyMatchingRows(t *testing.T) {
	// fatih/color disables itself by default when os.Stdout isn't a
	// terminal, which is always true under `go test`; force it on so this
	// test actually exercises the ANSI codes PrintTable would emit.
	original := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = original }()

	data := styledRenderer{fakeRenderer{
		headers: []string{"status", "name"},
		rows: [][]string{
			{"bad", "broken"},
			{"ok", "fine"},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, data, true))
	colored := buf.String()

	var plain bytes.Buffer
	require.NoError(t, PrintTable(&plain, data, false))

	assert.NotEqual(t, colored, plain.String())
	assert.Contains(t, colored, "broken")
	assert.Contains(t, colored, "fine")
}
