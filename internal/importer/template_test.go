package importer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesRoundTripThroughDetection(t *testing.T) {
	var csvBuf, xlsxBuf bytes.Buffer
	require.NoError(t, WriteTemplateCSV(&csvBuf))
	require.NoError(t, WriteTemplateXLSX(&xlsxBuf))

	for name, data := range map[string][]byte{
		"template.csv":  csvBuf.Bytes(),
		"template.xlsx": xlsxBuf.Bytes(),
	} {
		t.Run(name, func(t *testing.T) {
			file, err := Parse(name, data)
			require.NoError(t, err)
			assert.Equal(t, TemplateHeaders(), file.Headers)
			require.Equal(t, 1, file.RowCount)

			mappings := DetectMappings(file.Headers, file.Rows)
			for i, m := range mappings {
				assert.Equal(t, OutputFields()[i], m.Field, m.Header)
				assert.Equal(t, 100, m.Confidence, m.Header)
			}

			rows, summary := ProcessRows(file.Headers, file.Rows, mappings)
			assert.Equal(t, 0, summary.ErrorRows)
			assert.Equal(t, 0, summary.WarningRows)
			assert.Equal(t, "5125550100", rows[0].Value(FieldPhone))
		})
	}
}
