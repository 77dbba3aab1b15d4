package extract

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/xuri/excelize/v2"
)

// readXlsx flattens every sheet as a "Sheet: <name>" header followed by its
// rows.
func readXlsx(_ context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open workbook")
	}
	defer f.Close()

	var rows [][]string
	for _, sheet := range f.GetSheetList() {
		sheetRows, err := f.GetRows(sheet)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read sheet", goerr.V("sheet", sheet))
		}
		rows = append(rows, []string{"Sheet: " + sheet})
		rows = append(rows, sheetRows...)
	}
	return joinRows(rows), nil
}
