package paper

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
)

func TestJSONLRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "fills.jsonl")

	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	fill := execution.Fill{OrderID: 7, Ticker: "CRZY", Side: exchange.Sell, Type: exchange.Limit, Qty: 500, Price: 10.15}
	recorder.Record(fill)
	recorder.Record(execution.Fill{OrderID: 8, Ticker: "CRZY", Side: exchange.Sell, Type: exchange.Market, Qty: 500})
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	// Records after close are dropped, not panics.
	recorder.Record(fill)

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lines []execution.Fill
	for scanner.Scan() {
		var decoded execution.Fill
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		lines = append(lines, decoded)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Ticker != "CRZY" || lines[0].Side != exchange.Sell || lines[0].Price != 10.15 {
		t.Fatalf("unexpected decoded fill: %+v", lines[0])
	}
}
