package persistence

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/petrijr/stepflow/pkg/api"
)

// EncodeTable serializes a table as CSV with a header row, the on-disk
// form of a tabular state artifact.
func EncodeTable(t *api.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTable parses CSV bytes produced by EncodeTable back into a table.
func DecodeTable(data []byte) (*api.Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv payload has no header row")
	}
	return &api.Table{
		Columns: records[0],
		Rows:    records[1:],
	}, nil
}
