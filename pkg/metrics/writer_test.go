package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func completedRecord(id string) *TurnRecord {
	rec := &TurnRecord{TurnID: id}
	rec.merge(EOUMetrics{TurnID: id, EndOfUtteranceDelay: 300 * time.Millisecond})
	rec.merge(STTMetrics{TurnID: id, TranscriptionDelay: 100 * time.Millisecond})
	rec.merge(LLMMetrics{TurnID: id, TTFT: 500 * time.Millisecond, InputTokens: 12, OutputTokens: 8})
	rec.merge(TTSMetrics{TurnID: id, TTFB: 200 * time.Millisecond, Duration: 900 * time.Millisecond, AudioDuration: 1100 * time.Millisecond})
	rec.finalize(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return rec
}

func TestAppendCreatesWorkbookWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.xlsx")
	w := NewXLSXWriter(path)

	if err := w.Append(completedRecord("turn-1")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("workbook not created: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 data row, got %d rows", len(rows))
	}

	for i, col := range Columns {
		if rows[0][i] != col {
			t.Errorf("header column %d: expected %q, got %q", i, col, rows[0][i])
		}
	}
	if rows[1][0] != "2025-06-01 12:00:00" {
		t.Errorf("unexpected timestamp cell: %q", rows[1][0])
	}
}

func TestAppendAccumulatesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.xlsx")
	w := NewXLSXWriter(path)

	const n = 3
	for i := 0; i < n; i++ {
		if err := w.Append(completedRecord("turn")); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != n+1 {
		t.Errorf("expected exactly one header row plus %d data rows, got %d", n, len(rows))
	}
}

func TestAppendPartialRecordLeavesBlankCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.xlsx")
	w := NewXLSXWriter(path)

	rec := &TurnRecord{TurnID: "turn-1"}
	rec.merge(LLMMetrics{TurnID: "turn-1", TTFT: 500 * time.Millisecond, InputTokens: 12, OutputTokens: 8})
	rec.finalize(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	if err := w.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	// eou_delay (column B) must be blank, ttft (column D) populated.
	eou, err := f.GetCellValue(SheetName, "B2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if eou != "" {
		t.Errorf("expected blank eou_delay cell, got %q", eou)
	}
	ttft, err := f.GetCellValue(SheetName, "D2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if ttft == "" {
		t.Error("expected ttft cell to be populated")
	}
	total, err := f.GetCellValue(SheetName, "J2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if total != "" {
		t.Errorf("partial record should not carry total latency, got %q", total)
	}
}

func TestAppendUnwritableDestinationReturnsError(t *testing.T) {
	w := NewXLSXWriter(filepath.Join(t.TempDir(), "no-such-dir", "metrics.xlsx"))

	if err := w.Append(completedRecord("turn-1")); err == nil {
		t.Fatal("expected error for unwritable destination")
	}
}
