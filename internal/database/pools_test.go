package database

import (
	"strings"
	"testing"
)

func TestSchema(t *testing.T) {
	tables := []string{"quote_trades", "quote_book_levels", "news_items", "order_events"}

	if len(Schema) != len(tables) {
		t.Fatalf("len(Schema) = %d, want %d", len(Schema), len(tables))
	}
	for i, table := range tables {
		if !strings.Contains(Schema[i], "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("Schema[%d] does not create %s", i, table)
		}
		if !strings.Contains(Schema[i], "received_at") {
			t.Errorf("Schema[%d] has no received_at column", i)
		}
	}
}
