package query

import "spesa/internal/core"

// Dashboard bundles every aggregate the statistics view needs. It is always
// computed from the full, unfiltered collection.
type Dashboard struct {
	Today      core.Date       `json:"today"`
	Summary    Summary         `json:"summary"`
	Categories []CategoryTotal `json:"categories"`
	Monthly    []MonthTotals   `json:"monthly"`
	Daily      []DayTotal      `json:"daily"`
}

func BuildDashboard(expenses []core.Expense, today core.Date) Dashboard {
	categories := CategoryTotals(expenses)
	if categories == nil {
		categories = []CategoryTotal{}
	}
	return Dashboard{
		Today:      today,
		Summary:    Summarize(expenses, today),
		Categories: categories,
		Monthly:    MonthlyComparison(expenses, today),
		Daily:      DailyTrend(expenses, today),
	}
}

// Rounded returns a copy of d with every amount rounded to two decimal
// places. Summation above is done at full precision; this is the only place
// rounding happens.
func (d Dashboard) Rounded() Dashboard {
	out := Dashboard{
		Today:      d.Today,
		Summary:    d.Summary.Rounded(),
		Categories: make([]CategoryTotal, len(d.Categories)),
		Monthly:    make([]MonthTotals, len(d.Monthly)),
		Daily:      make([]DayTotal, len(d.Daily)),
	}
	for i, c := range d.Categories {
		out.Categories[i] = CategoryTotal{Category: c.Category, Amount: c.Amount.Rounded()}
	}
	for i, m := range d.Monthly {
		out.Monthly[i] = MonthTotals{Month: m.Month, CurrentYear: m.CurrentYear.Rounded(), PreviousYear: m.PreviousYear.Rounded()}
	}
	for i, day := range d.Daily {
		out.Daily[i] = DayTotal{Date: day.Date, Amount: day.Amount.Rounded()}
	}
	return out
}
