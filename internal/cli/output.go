package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"worktracker/internal/core"
)

type printer struct {
	format string
	w      io.Writer
}

func (p *printer) json() bool { return p.format == "json" }

// emit writes v as indented JSON, or calls text for the text format.
func (p *printer) emit(v any, text func(w io.Writer) error) error {
	if p.json() {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	if err := text(tw); err != nil {
		return err
	}
	return tw.Flush()
}

type companyTotalView struct {
	ID       core.ID    `json:"id"`
	Name     string     `json:"name"`
	Hours    float64    `json:"hours"`
	Earnings core.Money `json:"earnings"`
}

type summaryView struct {
	WorkIncome core.Money         `json:"workIncome"`
	Expenses   core.Money         `json:"expenses"`
	Insurance  core.Money         `json:"insurance"`
	Payroll    core.Money         `json:"payroll"`
	Net        core.Money         `json:"net"`
	ByCompany  []companyTotalView `json:"byCompany"`
}

func newSummaryView(t core.Totals) summaryView {
	v := summaryView{
		WorkIncome: t.WorkIncome,
		Expenses:   t.Expenses,
		Insurance:  t.Insurance,
		Payroll:    t.Payroll,
		Net:        t.Net,
		ByCompany:  make([]companyTotalView, 0, len(t.ByCompany)),
	}
	for _, c := range t.ByCompany {
		v.ByCompany = append(v.ByCompany, companyTotalView{ID: c.CompanyID, Name: c.Name, Hours: c.Hours, Earnings: c.Earnings})
	}
	return v
}

func writeSummary(w io.Writer, t core.Totals) error {
	if len(t.ByCompany) > 0 {
		fmt.Fprintln(w, "COMPANY\tHOURS\tEARNINGS")
		for _, c := range t.ByCompany {
			fmt.Fprintf(w, "%s\t%g\t%s\n", c.Name, c.Hours, c.Earnings)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Work income\t%s\n", t.WorkIncome.Signed())
	fmt.Fprintf(w, "Expenses\t%s\n", core.Money{}.Sub(t.Expenses).Signed())
	fmt.Fprintf(w, "Insurance\t%s\n", core.Money{}.Sub(t.Insurance).Signed())
	fmt.Fprintf(w, "Payroll\t%s\n", core.Money{}.Sub(t.Payroll).Signed())
	_, err := fmt.Fprintf(w, "Net\t%s\n", t.Net.Signed())
	return err
}
