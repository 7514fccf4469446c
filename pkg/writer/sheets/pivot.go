package sheets

import (
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// Pivot is the rendered year tab: main and sub categories against the
// twelve months, with yearly totals on the right and monthly expense
// totals at the bottom.
type Pivot struct {
	Title string
	Rows  [][]any
	// MainRows are the zero-based indexes of main category subtotal rows.
	MainRows []int
	// TotalRow is the zero-based index of the monthly totals row.
	TotalRow int
}

// YearPivot builds the pivot of one year. Main and sub categories are
// sorted by name; empty month cells are left blank.
func YearPivot(report *api.Report, year int) Pivot {
	title := yearTabPrefix + strconv.Itoa(year)
	p := Pivot{Title: title}

	header := make([]any, 0, len(monthsPL)+2)
	header = append(header, "Kategoria")
	for _, m := range monthsPL {
		header = append(header, m)
	}
	header = append(header, yearlyTotalCol)
	p.Rows = [][]any{{"Wydatki - " + title}, {}, header}

	y, ok := report.Years[year]
	if !ok {
		return p
	}

	mains := y.CategoriesYear.MainKeys()
	slices.Sort(mains)
	for _, main := range mains {
		subs, _ := y.CategoriesYear.Main(main)

		mainIdx := len(p.Rows)
		p.MainRows = append(p.MainRows, mainIdx)
		p.Rows = append(p.Rows, nil)

		var monthly [12]decimal.Decimal
		mainTotal := decimal.Zero
		for _, sub := range slices.Sorted(maps.Keys(subs)) {
			c := api.Category{Main: main, Sub: sub}
			row := []any{"  " + sub}
			for m := 1; m <= 12; m++ {
				amount := decimal.Zero
				if month, ok := y.Months[m]; ok {
					if cell, ok := month.Categories.Lookup(c); ok {
						amount = cell.Total
					}
				}
				monthly[m-1] = monthly[m-1].Add(amount)
				row = append(row, amountCell(amount))
			}
			total := subs[sub].Total
			mainTotal = mainTotal.Add(total)
			p.Rows = append(p.Rows, append(row, total.InexactFloat64()))
		}

		row := []any{main}
		for _, amount := range monthly {
			row = append(row, amountCell(amount))
		}
		p.Rows[mainIdx] = append(row, mainTotal.InexactFloat64())
	}

	p.Rows = append(p.Rows, []any{})
	p.TotalRow = len(p.Rows)
	totals := []any{monthlyTotalRow}
	for m := 1; m <= 12; m++ {
		amount := decimal.Zero
		if month, ok := y.Months[m]; ok {
			amount = month.TotalExpense
		}
		totals = append(totals, amountCell(amount))
	}
	p.Rows = append(p.Rows, append(totals, y.TotalYearExpense.InexactFloat64()))
	return p
}

func amountCell(d decimal.Decimal) any {
	if d.IsZero() {
		return ""
	}
	return d.InexactFloat64()
}

// UncategorizedRows renders the uncategorized transactions with the
// description cut to descriptionMax characters.
func UncategorizedRows(report *api.Report) [][]any {
	rows := make([][]any, 0, len(report.Uncategorized))
	for _, tx := range report.Uncategorized {
		desc := []rune(tx.Description)
		if len(desc) > descriptionMax {
			desc = desc[:descriptionMax]
		}
		rows = append(rows, []any{
			tx.Date.Format(time.DateOnly),
			tx.Counterparty,
			string(desc),
			tx.Amount.InexactFloat64(),
			tx.SourceBank,
			tx.ID,
		})
	}
	return rows
}

func (p Pivot) formatRequests(sheetID int64) []*sheets.Request {
	cols := len(monthsPL) + 2
	reqs := []*sheets.Request{
		clearFormat(sheetID),
		freeze(sheetID, yearHeaderRow+1, 1),
		columnWidth(sheetID, 0, 1, 250),
		columnWidth(sheetID, 1, cols, 90),
		repeatCell(gridRange(sheetID, 0, 1, 0, 1), &sheets.CellFormat{
			TextFormat: &sheets.TextFormat{Bold: true, FontSize: 14},
		}, "userEnteredFormat.textFormat"),
		repeatCell(gridRange(sheetID, yearHeaderRow, yearHeaderRow+1, 0, cols), &sheets.CellFormat{
			TextFormat:      &sheets.TextFormat{Bold: true},
			BackgroundColor: grayFill,
		}, "userEnteredFormat(textFormat,backgroundColor)"),
		repeatCell(gridRange(sheetID, yearHeaderRow+1, len(p.Rows), 1, cols), &sheets.CellFormat{
			NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: amountFormat},
		}, "userEnteredFormat.numberFormat"),
	}
	for _, r := range p.MainRows {
		reqs = append(reqs, repeatCell(gridRange(sheetID, r, r+1, 0, cols), &sheets.CellFormat{
			TextFormat: &sheets.TextFormat{Bold: true},
		}, "userEnteredFormat.textFormat.bold"))
	}
	if p.TotalRow > 0 {
		reqs = append(reqs, repeatCell(gridRange(sheetID, p.TotalRow, p.TotalRow+1, 0, cols), &sheets.CellFormat{
			TextFormat:      &sheets.TextFormat{Bold: true},
			BackgroundColor: lightFill,
		}, "userEnteredFormat(textFormat,backgroundColor)"))
	}
	return reqs
}

// listFormatRequests formats a tab holding a header row and one record per
// row, with amounts in amountCol.
func listFormatRequests(sheetID int64, cols int, fill *sheets.Color, amountCol int) []*sheets.Request {
	return []*sheets.Request{
		clearFormat(sheetID),
		freeze(sheetID, 1, 0),
		repeatCell(gridRange(sheetID, 0, 1, 0, cols), &sheets.CellFormat{
			TextFormat:      &sheets.TextFormat{Bold: true},
			BackgroundColor: fill,
		}, "userEnteredFormat(textFormat,backgroundColor)"),
		repeatCell(gridRange(sheetID, 1, 0, amountCol, amountCol+1), &sheets.CellFormat{
			NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: amountFormat},
		}, "userEnteredFormat.numberFormat"),
		{SetBasicFilter: &sheets.SetBasicFilterRequest{
			Filter: &sheets.BasicFilter{Range: gridRange(sheetID, 0, 0, 0, cols)},
		}},
	}
}

// gridRange builds a range on a tab; a zero end row leaves it unbounded.
func gridRange(sheetID int64, startRow, endRow, startCol, endCol int) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(startRow),
		EndRowIndex:      int64(endRow),
		StartColumnIndex: int64(startCol),
		EndColumnIndex:   int64(endCol),
		ForceSendFields:  []string{"SheetId"},
	}
}

func repeatCell(r *sheets.GridRange, f *sheets.CellFormat, fields string) *sheets.Request {
	return &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
		Range:  r,
		Cell:   &sheets.CellData{UserEnteredFormat: f},
		Fields: fields,
	}}
}

// clearFormat drops formatting left by a previous run.
func clearFormat(sheetID int64) *sheets.Request {
	return &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
		Range:  &sheets.GridRange{SheetId: sheetID, ForceSendFields: []string{"SheetId"}},
		Cell:   &sheets.CellData{},
		Fields: "userEnteredFormat",
	}}
}

func freeze(sheetID int64, rows, cols int) *sheets.Request {
	return &sheets.Request{UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
		Properties: &sheets.SheetProperties{
			SheetId: sheetID,
			GridProperties: &sheets.GridProperties{
				FrozenRowCount:    int64(rows),
				FrozenColumnCount: int64(cols),
				ForceSendFields:   []string{"FrozenRowCount", "FrozenColumnCount"},
			},
			ForceSendFields: []string{"SheetId"},
		},
		Fields: "gridProperties.frozenRowCount,gridProperties.frozenColumnCount",
	}}
}

func columnWidth(sheetID int64, start, end int, pixels int64) *sheets.Request {
	return &sheets.Request{UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
		Range: &sheets.DimensionRange{
			SheetId:         sheetID,
			Dimension:       "COLUMNS",
			StartIndex:      int64(start),
			EndIndex:        int64(end),
			ForceSendFields: []string{"SheetId"},
		},
		Properties: &sheets.DimensionProperties{PixelSize: pixels},
		Fields:     "pixelSize",
	}}
}
