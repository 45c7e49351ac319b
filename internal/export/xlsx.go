// Package export writes prospect lists to spreadsheet files for the
// outreach team.
package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/model"
)

var header = []string{
	"OSM ID", "Name", "Category", "Email", "Phone", "Website",
	"Address", "Postcode", "City", "Contacted",
}

// WriteXLSX writes prospects to an XLSX file at path, one row per
// prospect under a fixed header row.
func WriteXLSX(path string, prospects []model.Prospect) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Prospects")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}

	for _, p := range prospects {
		row := sheet.AddRow()
		row.AddCell().SetString(strconv.FormatInt(p.OSMID, 10))
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.Category)
		row.AddCell().SetString(p.Email)
		row.AddCell().SetString(p.Phone)
		row.AddCell().SetString(p.Website)
		row.AddCell().SetString(p.Address)
		row.AddCell().SetString(p.Postcode)
		row.AddCell().SetString(p.City)
		row.AddCell().SetString(strconv.FormatBool(p.Contacted))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
