package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

// ReadCSV parses a delimited file with a header row into a Table.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.BadRequest("file is empty")
		}
		return nil, apperrors.BadRequest("failed to read header: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	cells := make([][]string, len(headers))
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.BadRequest("error reading record on line %d: %w", line, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" && len(headers) > 1 {
			continue
		}
		if len(record) != len(headers) {
			return nil, apperrors.BadRequest("line %d has %d fields, expected %d", line, len(record), len(headers))
		}
		for j, v := range record {
			cells[j] = append(cells[j], v)
		}
	}

	columns := make([]*Column, len(headers))
	for j, name := range headers {
		columns[j] = ParseColumn(name, cells[j])
	}
	return NewTable(columns...)
}
