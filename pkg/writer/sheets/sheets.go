// Package sheets implements a Writer that exports a report to Google
// Sheets: one pivot tab per year, the uncategorized transactions, every
// transaction and a flat monthly category summary.
package sheets

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/writer/buffered"
)

// Default configuration values.
const (
	DefaultSheetTitle             = "Wydatki"
	DefaultSheetName              = "Transakcje"
	DefaultSummarySheetName       = "Podsumowanie"
	DefaultUncategorizedSheetName = "Nieprzypisane"
	DefaultBatchSize              = 200
	DefaultRetryDelay             = 60 * time.Second
)

// Year tab layout.
const (
	yearTabPrefix   = "Rok "
	yearHeaderRow   = 2
	monthlyTotalRow = "SUMA MIESIĘCZNA"
	yearlyTotalCol  = "SUMA ROCZNA"
	amountFormat    = "#,##0.00"
	descriptionMax  = 100
)

var monthsPL = [12]string{"Sty", "Lut", "Mar", "Kwi", "Maj", "Cze", "Lip", "Sie", "Wrz", "Paź", "Lis", "Gru"}

var (
	transactionHeader   = []any{"ID", "Data", "Kontrahent", "Opis", "Kwota", "Typ", "Waluta", "Kategoria", "Podkategoria", "Ręczna zmiana", "Bank", "Plik"}
	summaryHeader       = []any{"Rok", "Miesiąc", "Kategoria", "Podkategoria", "Suma", "Liczba"}
	uncategorizedHeader = []any{"Data", "Kontrahent", "Opis", "Kwota", "Bank", "ID"}
)

var (
	grayFill  = &sheets.Color{Red: 0.8, Green: 0.8, Blue: 0.8}
	lightFill = &sheets.Color{Red: 0.88, Green: 0.88, Blue: 0.88}
	redFill   = &sheets.Color{Red: 1, Green: 0.8, Blue: 0.8}
)

// Config holds configuration for the Sheets writer.
type Config struct {
	// SheetTitle is the title for a new spreadsheet (if SheetID is empty).
	SheetTitle string
	// SheetID is the ID of an existing spreadsheet to use.
	SheetID string
	// SheetName is the tab receiving one row per transaction.
	SheetName string
	// SummarySheetName is the tab receiving one row per month and category.
	SummarySheetName string
	// UncategorizedSheetName is the tab listing uncategorized transactions.
	UncategorizedSheetName string
	// BatchSize is the number of rows sent per append call.
	BatchSize int
}

// Writer writes the report to a Google spreadsheet.
type Writer struct {
	client     *sheets.Service
	cfg        Config
	retryDelay time.Duration
	logger     *slog.Logger

	spreadsheetID string
}

// New creates a new Sheets writer using an authorized HTTP client.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Writer, error) {
	return newWriter(cfg, logger, option.WithHTTPClient(httpClient))
}

func newWriter(cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SheetTitle == "" {
		cfg.SheetTitle = DefaultSheetTitle
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	if cfg.SummarySheetName == "" {
		cfg.SummarySheetName = DefaultSummarySheetName
	}
	if cfg.UncategorizedSheetName == "" {
		cfg.UncategorizedSheetName = DefaultUncategorizedSheetName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	client, err := sheets.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Writer{
		client:     client,
		cfg:        cfg,
		retryDelay: DefaultRetryDelay,
		logger:     logger.With("component", "sheets_writer"),
	}, nil
}

// Write replaces the content of every tab with the report.
func (w *Writer) Write(ctx context.Context, report *api.Report) error {
	pivots := make([]Pivot, 0, len(report.Years))
	for _, yr := range report.YearKeys() {
		pivots = append(pivots, YearPivot(report, yr))
	}

	tabs := make([]string, 0, len(pivots)+3)
	for _, p := range pivots {
		tabs = append(tabs, p.Title)
	}
	tabs = append(tabs, w.cfg.UncategorizedSheetName, w.cfg.SheetName, w.cfg.SummarySheetName)

	ids, err := w.initSpreadsheet(ctx, tabs)
	if err != nil {
		return fmt.Errorf("initializing spreadsheet: %w", err)
	}

	for _, p := range pivots {
		if err := w.replace(ctx, p.Title, p.Rows); err != nil {
			return err
		}
	}

	uncategorized := UncategorizedRows(report)
	if err := w.writeTab(ctx, w.cfg.UncategorizedSheetName, uncategorizedHeader, uncategorized); err != nil {
		return err
	}

	transactions := make([][]any, 0, len(report.AllTransactions))
	for _, tx := range report.AllTransactions {
		transactions = append(transactions, TransactionRow(tx))
	}
	if err := w.writeTab(ctx, w.cfg.SheetName, transactionHeader, transactions); err != nil {
		return err
	}

	summary := SummaryRows(report)
	if err := w.writeTab(ctx, w.cfg.SummarySheetName, summaryHeader, summary); err != nil {
		return err
	}

	var requests []*sheets.Request
	for _, p := range pivots {
		requests = append(requests, p.formatRequests(ids[p.Title])...)
	}
	requests = append(requests, listFormatRequests(ids[w.cfg.UncategorizedSheetName], len(uncategorizedHeader), redFill, 3)...)
	requests = append(requests, listFormatRequests(ids[w.cfg.SheetName], len(transactionHeader), grayFill, 4)...)
	requests = append(requests, listFormatRequests(ids[w.cfg.SummarySheetName], len(summaryHeader), grayFill, 4)...)
	if err := w.format(ctx, requests); err != nil {
		return err
	}

	w.logger.Info("report exported",
		"spreadsheet_id", w.spreadsheetID,
		"years", len(pivots),
		"transactions", len(transactions),
		"uncategorized", len(uncategorized),
		"summary_rows", len(summary),
	)
	return nil
}

// SpreadsheetID returns the ID of the spreadsheet being written to. It is
// empty until the first Write.
func (w *Writer) SpreadsheetID() string {
	return w.spreadsheetID
}

// initSpreadsheet opens or creates the spreadsheet, makes sure every tab
// exists and returns the sheet id of each tab by title.
func (w *Writer) initSpreadsheet(ctx context.Context, tabs []string) (map[string]int64, error) {
	id := cmp.Or(w.spreadsheetID, w.cfg.SheetID)
	if id != "" {
		spreadsheet, err := w.client.Spreadsheets.Get(id).Context(ctx).Do()
		if err == nil {
			if w.spreadsheetID == "" {
				w.logger.Info("using existing spreadsheet", "title", spreadsheet.Properties.Title, "id", id)
			}
			w.spreadsheetID = spreadsheet.SpreadsheetId
			return w.ensureTabs(ctx, spreadsheet, tabs)
		}
		w.logger.Warn("failed to get spreadsheet, will create new one", "id", id, "error", err)
	}

	newTabs := make([]*sheets.Sheet, 0, len(tabs))
	for _, name := range tabs {
		newTabs = append(newTabs, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: name}})
	}
	spreadsheet, err := w.client.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: w.cfg.SheetTitle},
		Sheets:     newTabs,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating spreadsheet: %w", err)
	}
	w.spreadsheetID = spreadsheet.SpreadsheetId
	w.logger.Info("created new spreadsheet", "title", w.cfg.SheetTitle, "id", w.spreadsheetID)
	return sheetIDs(spreadsheet.Sheets), nil
}

// ensureTabs adds whichever tabs an existing spreadsheet lacks.
func (w *Writer) ensureTabs(ctx context.Context, spreadsheet *sheets.Spreadsheet, tabs []string) (map[string]int64, error) {
	ids := sheetIDs(spreadsheet.Sheets)

	var requests []*sheets.Request
	for _, name := range tabs {
		if _, ok := ids[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
			})
		}
	}
	if len(requests) == 0 {
		return ids, nil
	}

	resp, err := w.client.Spreadsheets.BatchUpdate(w.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("adding tabs: %w", err)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			ids[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
		}
	}
	w.logger.Info("added missing tabs", "count", len(requests))
	return ids, nil
}

func sheetIDs(tabs []*sheets.Sheet) map[string]int64 {
	ids := make(map[string]int64, len(tabs))
	for _, s := range tabs {
		if s.Properties != nil {
			ids[s.Properties.Title] = s.Properties.SheetId
		}
	}
	return ids
}

// replace clears a tab and writes rows from A1.
func (w *Writer) replace(ctx context.Context, sheetName string, rows [][]any) error {
	_, err := w.client.Spreadsheets.Values.Clear(w.spreadsheetID, cellRange(sheetName, ""), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("clearing %s: %w", sheetName, err)
	}

	_, err = w.client.Spreadsheets.Values.Update(w.spreadsheetID, cellRange(sheetName, "A1"), &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("updating %s: %w", sheetName, err)
	}
	return nil
}

// writeTab replaces a tab with a header row and appends rows in batches.
func (w *Writer) writeTab(ctx context.Context, sheetName string, header []any, rows [][]any) error {
	if err := w.replace(ctx, sheetName, [][]any{header}); err != nil {
		return err
	}
	batcher := buffered.New(w.appendTo(sheetName), buffered.Config{BatchSize: w.cfg.BatchSize}, w.logger)
	return batcher.Write(ctx, rows)
}

// appendTo returns a flush function writing a batch of rows to one tab in
// a single API call.
func (w *Writer) appendTo(sheetName string) func(context.Context, [][]any) error {
	return func(ctx context.Context, batch [][]any) error {
		err := w.withRetry(func() error {
			_, err := w.client.Spreadsheets.Values.Append(w.spreadsheetID, cellRange(sheetName, "A2"), &sheets.ValueRange{Values: batch}).
				ValueInputOption("USER_ENTERED").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("appending batch to %s: %w", sheetName, err)
		}
		return nil
	}
}

// format applies cell formatting in one batch update.
func (w *Writer) format(ctx context.Context, requests []*sheets.Request) error {
	if len(requests) == 0 {
		return nil
	}
	err := w.withRetry(func() error {
		_, err := w.client.Spreadsheets.BatchUpdate(w.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("formatting tabs: %w", err)
	}
	return nil
}

// withRetry retries fn while the API answers 429 Too Many Requests.
func (w *Writer) withRetry(fn func() error) error {
	return retry.Do(
		fn,
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				w.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(w.retryDelay),
		retry.LastErrorOnly(true),
	)
}

// cellRange returns an A1 range on a tab, or the whole tab for an empty cell.
func cellRange(sheetName, cell string) string {
	if cell == "" {
		return fmt.Sprintf("'%s'", sheetName)
	}
	return fmt.Sprintf("'%s'!%s", sheetName, cell)
}

// TransactionRow renders one transaction for the transactions tab.
func TransactionRow(tx *api.Transaction) []any {
	c := tx.Category()
	return []any{
		tx.ID,
		tx.Date.Format(time.DateOnly),
		tx.Counterparty,
		tx.Description,
		tx.Amount.InexactFloat64(),
		string(tx.Type),
		tx.Currency,
		c.Main,
		c.Sub,
		tx.ManualOverride,
		tx.SourceBank,
		tx.SourceFile,
	}
}

// SummaryRows renders one row per (year, month, main, sub) in calendar
// order, categories in first-seen order within a month.
func SummaryRows(report *api.Report) [][]any {
	var rows [][]any
	for _, yr := range report.YearKeys() {
		y := report.Years[yr]
		for _, m := range y.MonthKeys() {
			month := y.Months[m]
			for _, c := range month.Categories.Keys() {
				cell, _ := month.Categories.Lookup(c)
				rows = append(rows, []any{yr, m, c.Main, c.Sub, cell.Total.InexactFloat64(), cell.Count})
			}
		}
	}
	return rows
}
