package intake

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadFile loads lead candidates from a .csv or .xlsx file. The first column
// is the handle, the second the platform; a header row is detected and
// skipped. Malformed rows are dropped.
func ReadFile(path string) ([]Candidate, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("import: unsupported file type %s", filepath.Ext(path))
	}
}

func readCSV(path string) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "import: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []Candidate
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "import: read csv")
		}
		if c, ok := rowCandidate(record); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func readXLSX(path string) ([]Candidate, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "import: open %s", path)
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.New("import: workbook has no sheets")
	}

	var out []Candidate
	for _, row := range wb.Sheets[0].Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, cell.String())
		}
		if c, ok := rowCandidate(cells); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func rowCandidate(cells []string) (Candidate, bool) {
	if len(cells) == 0 {
		return Candidate{}, false
	}
	handle := strings.TrimSpace(cells[0])
	if handle == "" || strings.EqualFold(handle, "handle") {
		return Candidate{}, false
	}
	platform := ""
	if len(cells) > 1 {
		platform = cells[1]
	}
	return ParseCandidate(handle, platform)
}
