package metrics

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet that turn rows are appended to.
const SheetName = "Metrics"

// Columns is the fixed spreadsheet column order. One TurnRecord maps to one
// row with these columns.
var Columns = []string{
	"timestamp",
	"eou_delay",
	"transcription_delay",
	"ttft",
	"llm_input_tokens",
	"llm_output_tokens",
	"tts_ttfb",
	"tts_duration",
	"tts_audio_duration",
	"total_latency",
}

// timestampLayout is the cell format for the timestamp column.
const timestampLayout = "2006-01-02 15:04:05"

// Writer persists completed turn records.
type Writer interface {
	// Append writes one record as a single row. Implementations must not
	// retry internally; persistence failures are the caller's to log and
	// absorb.
	Append(rec *TurnRecord) error
}

// XLSXWriter appends turn records to an xlsx workbook on disk, creating the
// file and header row on first use. Appends are serialized; the workbook has
// a single writer.
type XLSXWriter struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewXLSXWriter creates a writer for the workbook at path.
// The file is not touched until the first Append.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{
		path:   path,
		logger: slog.Default().With("component", "metrics.writer"),
	}
}

// Path returns the workbook path.
func (w *XLSXWriter) Path() string { return w.path }

// Append writes rec as one row in the fixed column order, creating the
// workbook with a header row if it does not exist yet.
func (w *XLSXWriter) Append(rec *TurnRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("metrics: read sheet %q: %w", SheetName, err)
	}

	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return fmt.Errorf("metrics: row coordinates: %w", err)
	}

	row := rowValues(rec)
	if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
		return fmt.Errorf("metrics: set row: %w", err)
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("metrics: save workbook %s: %w", w.path, err)
	}

	w.logger.Debug("appended turn row", "turn_id", rec.TurnID, "path", w.path)
	return nil
}

// open loads the existing workbook or builds a fresh one with the header row.
func (w *XLSXWriter) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if err := f.SetSheetName("Sheet1", SheetName); err != nil {
			f.Close()
			return nil, fmt.Errorf("metrics: name sheet: %w", err)
		}
		header := make([]any, len(Columns))
		for i, c := range Columns {
			header[i] = c
		}
		if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
			f.Close()
			return nil, fmt.Errorf("metrics: write header: %w", err)
		}
		return f, nil
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("metrics: open workbook %s: %w", w.path, err)
	}
	return f, nil
}

// rowValues maps a record to cell values in Columns order.
// Missing optional fields become blank cells.
func rowValues(rec *TurnRecord) []any {
	return []any{
		rec.Timestamp.Format(timestampLayout),
		cellFloat(rec.EOUDelay),
		cellFloat(rec.TranscriptionDelay),
		cellFloat(rec.TTFT),
		cellInt(rec.LLMInputTokens),
		cellInt(rec.LLMOutputTokens),
		cellFloat(rec.TTSTTFB),
		cellFloat(rec.TTSDuration),
		cellFloat(rec.TTSAudioDuration),
		cellFloat(rec.TotalLatency),
	}
}

func cellFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func cellInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
