package export

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/c360studio/casegen/testcase"
)

const flatSheetName = "Test Cases"

// WriteExcel renders the cases as a flat single-sheet workbook with a bold
// header row.
func WriteExcel(w io.Writer, cases []testcase.TestCase) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", flatSheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	for i, header := range csvHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(flatSheetName, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(flatSheetName, cell, cell, boldStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	widths := make([]int, len(csvHeaders))
	for i, h := range csvHeaders {
		widths[i] = len(h)
	}
	for row, tc := range cases {
		values := []string{
			tc.Scenario,
			tc.Description,
			tc.Precondition,
			tc.TestData,
			strings.Join(tc.Steps, "\n"),
			tc.ExpectedResult,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(flatSheetName, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row+2, err)
			}
			for _, line := range strings.Split(v, "\n") {
				if len(line) > widths[col] {
					widths[col] = len(line)
				}
			}
		}
	}
	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(flatSheetName, col, col, float64(width+2)); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

var stepNumbering = regexp.MustCompile(`^\d+[.)]\s*`)

// FormatSteps renders steps as an enumerated multi-line string, stripping
// any numbering the model already added so the output never reads
// "1. 1. Do X".
func FormatSteps(steps []string) string {
	var out []string
	for _, step := range steps {
		step = strings.TrimSpace(step)
		if step == "" || step == "N/A" || step == "None" {
			continue
		}
		step = stepNumbering.ReplaceAllString(step, "")
		out = append(out, fmt.Sprintf("%d. %s", len(out)+1, step))
	}
	return strings.Join(out, "\n")
}

// Template merge constants. The template keeps its Summary sheet untouched;
// the Test Cases sheet has rows 1-2 as headers and data from row 3, columns
// A through L.
const (
	templateSheet    = "Test Cases"
	templateDataRow  = 3
	templateDataCols = 12

	// MaxTemplateSize bounds uploaded template files.
	MaxTemplateSize = 10 * 1024 * 1024
)

var templateStopWords = map[string]bool{"page": true, "the": true, "a": true, "an": true}

// featurePrefix derives the Test ID prefix from a feature name: one
// significant word uses its first five letters, several use their initials.
func featurePrefix(featureName string) string {
	name := strings.TrimSpace(featureName)
	if name == "" {
		return "GEN"
	}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(name)) {
		if !templateStopWords[w] {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		if len(name) >= 5 {
			return strings.ToUpper(name[:5])
		}
		return strings.ToUpper(name)
	}
	if len(words) == 1 {
		w := words[0]
		if len(w) > 5 {
			w = w[:5]
		}
		return strings.ToUpper(w)
	}
	var b strings.Builder
	for _, w := range words[:2] {
		b.WriteString(strings.ToUpper(w[:1]))
	}
	return b.String()
}

// FeatureCases pairs a feature name with its test cases for a multi-feature
// template merge.
type FeatureCases struct {
	FeatureName string
	Cases       []testcase.TestCase
}

// MergeIntoTemplate writes the cases of one feature into an uploaded Excel
// template, preserving the header rows and formatting, and writes the
// resulting workbook to w.
func MergeIntoTemplate(w io.Writer, template io.Reader, featureName string, cases []testcase.TestCase) error {
	return mergeTemplate(w, template, []FeatureCases{{FeatureName: featureName, Cases: cases}}, false)
}

// MergeAllIntoTemplate writes every feature's cases into the template's
// single Test Cases sheet, in feature order, with a global sequential
// number in column A and per-feature Test IDs in column B.
func MergeAllIntoTemplate(w io.Writer, template io.Reader, features []FeatureCases) error {
	return mergeTemplate(w, template, features, true)
}

func mergeTemplate(w io.Writer, template io.Reader, features []FeatureCases, globalNumbering bool) error {
	total := 0
	for _, fc := range features {
		total += len(fc.Cases)
	}
	if total == 0 {
		return ErrNoCases
	}

	f, err := excelize.OpenReader(io.LimitReader(template, MaxTemplateSize+1))
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(templateSheet); err != nil || idx < 0 {
		return fmt.Errorf("template must contain a sheet named %q", templateSheet)
	}

	rows, err := f.GetRows(templateSheet)
	if err != nil {
		return fmt.Errorf("read template sheet: %w", err)
	}

	// Remember the first data row's formatting before clearing so new rows
	// inherit it.
	styles := make([]int, templateDataCols)
	if len(rows) >= templateDataRow {
		for col := 1; col <= templateDataCols; col++ {
			cell, _ := excelize.CoordinatesToCellName(col, templateDataRow)
			styleID, err := f.GetCellStyle(templateSheet, cell)
			if err != nil {
				return fmt.Errorf("read template style: %w", err)
			}
			styles[col-1] = styleID
		}
		for i := len(rows); i >= templateDataRow; i-- {
			if err := f.RemoveRow(templateSheet, templateDataRow); err != nil {
				return fmt.Errorf("clear template data: %w", err)
			}
		}
	}

	row := templateDataRow
	globalNo := 1
	for _, feature := range features {
		prefix := featurePrefix(feature.FeatureName)
		for idx, tc := range feature.Cases {
			no := idx + 1
			if globalNumbering {
				no = globalNo
			}
			values := []any{
				no,
				fmt.Sprintf("TC_%s_%03d", prefix, idx+1),
				tc.Scenario,
				tc.Description,
				tc.Precondition,
				tc.TestData,
				FormatSteps(tc.Steps),
				tc.ExpectedResult,
				"",
				"Not Executed",
				"",
				"",
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(templateSheet, cell, v); err != nil {
					return fmt.Errorf("write data row %d: %w", row, err)
				}
				if styles[col] != 0 {
					if err := f.SetCellStyle(templateSheet, cell, cell, styles[col]); err != nil {
						return fmt.Errorf("style data row %d: %w", row, err)
					}
				}
			}
			globalNo++
			row++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ErrNoCases reports an export request with nothing to export.
var ErrNoCases = errors.New("no test cases to export")
