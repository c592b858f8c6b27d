// Package export writes a user's data as a JSON backup or an Excel workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"worktracker/internal/core"
)

// Sheet names of the workbook, in order.
const (
	SheetSummary     = "Summary"
	SheetCompanies   = "Companies"
	SheetWorkRecords = "Work Records"
	SheetExpenses    = "Expenses"
	SheetInsurance   = "Insurance"
	SheetPayroll     = "Payroll"
)

// WriteJSON writes the snapshot in the document format, so the output can be
// imported again.
func WriteJSON(w io.Writer, s core.Snapshot) error {
	b, err := core.EncodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

type sheet struct {
	name    string
	headers []string
	widths  []float64
	rows    [][]any
}

// WriteWorkbook writes an .xlsx file with one sheet per collection and a
// summary sheet with the totals.
func WriteWorkbook(w io.Writer, s core.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create money style: %w", err)
	}

	sheets := []sheet{summarySheet(s), companiesSheet(s), workRecordsSheet(s), expensesSheet(s), insuranceSheet(s), payrollSheet(s)}
	if err := f.SetSheetName("Sheet1", sheets[0].name); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, sh := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(sh.name); err != nil {
				return fmt.Errorf("create sheet %s: %w", sh.name, err)
			}
		}
		if err := writeSheet(f, sh, headerStyle, moneyStyle); err != nil {
			return fmt.Errorf("write sheet %s: %w", sh.name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh sheet, headerStyle, moneyStyle int) error {
	header := make([]any, len(sh.headers))
	for i, h := range sh.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sh.name, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(sh.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sh.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, width := range sh.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.name, col, col, width); err != nil {
			return err
		}
	}

	for r, row := range sh.rows {
		cells := make([]any, len(row))
		var moneyCols []int
		for c, v := range row {
			if m, ok := v.(core.Money); ok {
				cells[c] = m.Float()
				moneyCols = append(moneyCols, c+1)
				continue
			}
			cells[c] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.name, cell, &cells); err != nil {
			return err
		}
		for _, col := range moneyCols {
			cell, err := excelize.CoordinatesToCellName(col, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(sh.name, cell, cell, moneyStyle); err != nil {
				return err
			}
		}
	}
	return nil
}

func summarySheet(s core.Snapshot) sheet {
	t := core.GrandTotals(s)
	sh := sheet{
		name:    SheetSummary,
		headers: []string{"Item", "Hours", "Amount"},
		widths:  []float64{30, 10, 15},
	}
	for _, c := range t.ByCompany {
		sh.rows = append(sh.rows, []any{c.Name, c.Hours, c.Earnings})
	}
	sh.rows = append(sh.rows,
		[]any{"Work income", "", t.WorkIncome},
		[]any{"Expenses", "", core.Money{}.Sub(t.Expenses)},
		[]any{"Insurance", "", core.Money{}.Sub(t.Insurance)},
		[]any{"Payroll", "", core.Money{}.Sub(t.Payroll)},
		[]any{"Net", "", t.Net},
	)
	return sh
}

func companiesSheet(s core.Snapshot) sheet {
	sh := sheet{
		name:    SheetCompanies,
		headers: []string{"ID", "Name", "Base rate", "Deduction %", "Pay rate"},
		widths:  []float64{38, 25, 12, 12, 12},
	}
	for _, c := range s.Companies {
		sh.rows = append(sh.rows, []any{string(c.ID), c.Name, c.BaseRate, c.DeductionPercent, c.PayRate})
	}
	return sh
}

func workRecordsSheet(s core.Snapshot) sheet {
	names := make(map[core.ID]string, len(s.Companies))
	for _, c := range s.Companies {
		names[c.ID] = c.Name
	}
	sh := sheet{
		name:    SheetWorkRecords,
		headers: []string{"ID", "Date", "Company", "Hours", "Rate", "Earnings", "Description"},
		widths:  []float64{38, 12, 25, 8, 12, 12, 30},
	}
	for _, w := range s.WorkRecords {
		sh.rows = append(sh.rows, []any{string(w.ID), w.Date, names[w.CompanyID], w.Hours, w.Rate, w.Earnings(), w.Description})
	}
	return sh
}

func expensesSheet(s core.Snapshot) sheet {
	sh := amountSheet(SheetExpenses)
	for _, e := range s.Expenses {
		sh.rows = append(sh.rows, []any{string(e.ID), e.Date, e.Amount, e.Description})
	}
	return sh
}

func insuranceSheet(s core.Snapshot) sheet {
	sh := amountSheet(SheetInsurance)
	for _, i := range s.Insurance {
		sh.rows = append(sh.rows, []any{string(i.ID), i.Date, i.Amount, i.Description})
	}
	return sh
}

func payrollSheet(s core.Snapshot) sheet {
	sh := sheet{
		name:    SheetPayroll,
		headers: []string{"ID", "Date", "Gross pay", "Description"},
		widths:  []float64{38, 12, 12, 30},
	}
	for _, p := range s.Payroll {
		var gross any = ""
		if p.GrossPay != nil {
			gross = *p.GrossPay
		}
		sh.rows = append(sh.rows, []any{string(p.ID), p.Date, gross, p.Description})
	}
	return sh
}

func amountSheet(name string) sheet {
	return sheet{
		name:    name,
		headers: []string{"ID", "Date", "Amount", "Description"},
		widths:  []float64{38, 12, 12, 30},
	}
}
