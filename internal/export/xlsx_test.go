package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/model"
)

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prospects.xlsx")

	prospects := []model.Prospect{
		{
			OSMID:    123456,
			Name:     "Boulangerie Martin",
			Category: "bakery",
			Email:    "contact@martin.fr",
			Phone:    "+33 2 99 00 00 00",
			Address:  "4 Rue de la Gare",
			Postcode: "35750",
			City:     "Iffendic",
		},
		{
			OSMID:     789,
			Name:      "Garage Leroy",
			Category:  "car_repair",
			Contacted: true,
		},
	}

	require.NoError(t, WriteXLSX(path, prospects))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Prospects", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "OSM ID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "123456", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "Boulangerie Martin", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "contact@martin.fr", sheet.Rows[1].Cells[3].String())
	assert.Equal(t, "Iffendic", sheet.Rows[1].Cells[8].String())
	assert.Equal(t, "false", sheet.Rows[1].Cells[9].String())
	assert.Equal(t, "true", sheet.Rows[2].Cells[9].String())
}

func TestWriteXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")

	require.NoError(t, WriteXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 1) // header only
}

func TestWriteXLSX_BadPath(t *testing.T) {
	err := WriteXLSX("/nonexistent-dir/out.xlsx", nil)
	assert.Error(t, err)
}
