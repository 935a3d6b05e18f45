package core

// CategoryStat is a per-category aggregate over a date range.
type CategoryStat struct {
	Category string
	Icon     string
	Type     TransactionType
	Total    Money
}

// Balance holds income and expense totals over a date range.
type Balance struct {
	Income  Money
	Expense Money
}

// DayBalance is one day's totals within a month history.
type DayBalance struct {
	Day     int
	Income  Money
	Expense Money
}

// MonthBalance is one month's totals within a year history.
type MonthBalance struct {
	Month   int
	Income  Money
	Expense Money
}
