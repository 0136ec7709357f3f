package query

import (
	"time"

	"spesa/internal/core"
)

// TrendDays is the length of the trailing daily series.
const TrendDays = 30

// CategoryTotal is the sum of amounts for one category.
type CategoryTotal struct {
	Category core.Category `json:"category"`
	Amount   core.Money    `json:"amount"`
}

// MonthTotals compares one calendar month of the current year with the same
// month of the previous year.
type MonthTotals struct {
	Month        time.Month `json:"month"`
	CurrentYear  core.Money `json:"currentYear"`
	PreviousYear core.Money `json:"previousYear"`
}

// DayTotal is the sum of amounts dated exactly on Date.
type DayTotal struct {
	Date   core.Date  `json:"date"`
	Amount core.Money `json:"amount"`
}

// Summary holds the dashboard scalars.
type Summary struct {
	Count        int        `json:"count"`
	Total        core.Money `json:"total"`
	Average      core.Money `json:"average"`
	Max          core.Money `json:"max"`
	CurrentMonth core.Money `json:"currentMonth"`
}

// Total sums every amount in expenses.
func Total(expenses []core.Expense) core.Money {
	var sum core.Money
	for _, e := range expenses {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// CategoryTotals groups amounts by category. Only categories present in the
// data appear, in order of first appearance.
func CategoryTotals(expenses []core.Expense) []CategoryTotal {
	index := make(map[core.Category]int)
	var out []CategoryTotal
	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryTotal{Category: e.Category})
		}
		out[i].Amount = out[i].Amount.Add(e.Amount)
	}
	return out
}

// MonthlyComparison always returns 12 rows, January first. Months without
// matching records hold zero.
func MonthlyComparison(expenses []core.Expense, today core.Date) []MonthTotals {
	current := today.Year()
	previous := current - 1

	out := make([]MonthTotals, 12)
	for i := range out {
		out[i].Month = time.Month(i + 1)
	}
	for _, e := range expenses {
		row := &out[e.Date.Month()-1]
		switch e.Date.Year() {
		case current:
			row.CurrentYear = row.CurrentYear.Add(e.Amount)
		case previous:
			row.PreviousYear = row.PreviousYear.Add(e.Amount)
		}
	}
	return out
}

// DailyTrend returns TrendDays rows ending with today, oldest first.
func DailyTrend(expenses []core.Expense, today core.Date) []DayTotal {
	start := today.AddDays(-(TrendDays - 1))

	out := make([]DayTotal, TrendDays)
	for i := range out {
		out[i].Date = start.AddDays(i)
	}
	for _, e := range expenses {
		if e.Date.Before(start.Time) || e.Date.After(today.Time) {
			continue
		}
		i := int(e.Date.Sub(start.Time).Hours() / 24)
		out[i].Amount = out[i].Amount.Add(e.Amount)
	}
	return out
}

// Summarize computes total, average, max and the current-month total.
// An empty collection yields all zeros.
func Summarize(expenses []core.Expense, today core.Date) Summary {
	s := Summary{Count: len(expenses)}
	for i, e := range expenses {
		s.Total = s.Total.Add(e.Amount)
		if i == 0 || e.Amount.Cmp(s.Max) > 0 {
			s.Max = e.Amount
		}
		if e.Date.SameMonth(today.Year(), today.Month()) {
			s.CurrentMonth = s.CurrentMonth.Add(e.Amount)
		}
	}
	s.Average = s.Total.Div(s.Count)
	return s
}

// Rounded returns s with every amount rounded to two decimal places.
func (s Summary) Rounded() Summary {
	s.Total = s.Total.Rounded()
	s.Average = s.Average.Rounded()
	s.Max = s.Max.Rounded()
	s.CurrentMonth = s.CurrentMonth.Rounded()
	return s
}
