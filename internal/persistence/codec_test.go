package persistence

import (
	"reflect"
	"testing"

	"github.com/petrijr/stepflow/pkg/api"
)

func TestTableCodecRoundTrip(t *testing.T) {
	table := api.NewTable("name", "region", "temp_c")
	_ = table.Append("Lisbon", "Lisboa", "21.5")
	_ = table.Append("Oslo", "Østlandet", "-3")
	_ = table.Append("Quoted, City", "with \"quotes\"", "0")

	data, err := EncodeTable(table)
	if err != nil {
		t.Fatalf("EncodeTable failed: %v", err)
	}

	got, err := DecodeTable(data)
	if err != nil {
		t.Fatalf("DecodeTable failed: %v", err)
	}
	if !reflect.DeepEqual(got.Columns, table.Columns) {
		t.Fatalf("columns = %v, want %v", got.Columns, table.Columns)
	}
	if !reflect.DeepEqual(got.Rows, table.Rows) {
		t.Fatalf("rows = %v, want %v", got.Rows, table.Rows)
	}
}

func TestDecodeTableRejectsEmptyInput(t *testing.T) {
	if _, err := DecodeTable(nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestDecodeTableHeaderOnly(t *testing.T) {
	table := api.NewTable("a", "b")

	data, err := EncodeTable(table)
	if err != nil {
		t.Fatalf("EncodeTable failed: %v", err)
	}
	got, err := DecodeTable(data)
	if err != nil {
		t.Fatalf("DecodeTable failed: %v", err)
	}
	if got.NumRows() != 0 {
		t.Fatalf("NumRows = %d, want 0", got.NumRows())
	}
}
