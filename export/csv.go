package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/c360studio/casegen/testcase"
)

// csvHeaders is the column order shared with the spreadsheet exporters.
var csvHeaders = []string{
	"Test Scenario",
	"Description",
	"Precondition",
	"Test Data",
	"Test Steps",
	"Expected Result",
}

// WriteCSV renders the cases as CSV. Steps are joined with " | " into a
// single cell.
func WriteCSV(w io.Writer, cases []testcase.TestCase) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, tc := range cases {
		row := []string{
			tc.Scenario,
			tc.Description,
			tc.Precondition,
			tc.TestData,
			strings.Join(tc.Steps, " | "),
			tc.ExpectedResult,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
