package core

// Aggregate buckets: month_history holds one row per (user, year, month, day),
// year_history one row per (user, year, month). Both accumulate income and
// expense cents for the transactions dated in that bucket. Buckets are created
// lazily on first contribution and never deleted, even when they decay to zero.

type (
	// DayKey identifies a month-history bucket.
	DayKey struct {
		UserID string
		Year   int
		Month  int // 1-12
		Day    int // 1-31
	}

	// MonthKey identifies a year-history bucket.
	MonthKey struct {
		UserID string
		Year   int
		Month  int // 1-12
	}

	// Delta is a signed pair of cent increments to apply to one bucket.
	Delta struct {
		IncomeCents  int64
		ExpenseCents int64
	}
)

// DayKeyOf returns the month-history bucket a transaction date falls into.
func DayKeyOf(userID string, d Date) DayKey {
	return DayKey{UserID: userID, Year: d.Year(), Month: d.Month(), Day: d.Day()}
}

// MonthKeyOf returns the year-history bucket a transaction date falls into.
func MonthKeyOf(userID string, d Date) MonthKey {
	return MonthKey{UserID: userID, Year: d.Year(), Month: d.Month()}
}

// MonthKey returns the year-history bucket containing this day bucket.
func (k DayKey) MonthKey() MonthKey {
	return MonthKey{UserID: k.UserID, Year: k.Year, Month: k.Month}
}

// Contribution returns the delta one transaction adds to its buckets,
// scaled by sign (+1 to add the transaction, -1 to remove it).
func Contribution(typ TransactionType, amount Money, sign int64) Delta {
	var d Delta
	switch typ {
	case Income:
		d.IncomeCents = sign * amount.Cents
	case Expense:
		d.ExpenseCents = sign * amount.Cents
	}
	return d
}

func (d Delta) add(o Delta) Delta {
	d.IncomeCents += o.IncomeCents
	d.ExpenseCents += o.ExpenseCents
	return d
}

// IsZero reports whether the delta would leave a bucket unchanged.
func (d Delta) IsZero() bool {
	return d.IncomeCents == 0 && d.ExpenseCents == 0
}

// DeltaSet accumulates signed bucket contributions grouped by key.
// Bulk operations build one in a single pass over their rows so each touched
// bucket is upserted exactly once with its summed delta.
type DeltaSet struct {
	Days   map[DayKey]Delta
	Months map[MonthKey]Delta
}

func NewDeltaSet() *DeltaSet {
	return &DeltaSet{
		Days:   make(map[DayKey]Delta),
		Months: make(map[MonthKey]Delta),
	}
}

// Add accumulates one transaction's contribution into both bucket levels.
func (s *DeltaSet) Add(userID string, date Date, typ TransactionType, amount Money, sign int64) {
	c := Contribution(typ, amount, sign)
	if c.IsZero() {
		return
	}
	dk := DayKeyOf(userID, date)
	s.Days[dk] = s.Days[dk].add(c)
	mk := dk.MonthKey()
	s.Months[mk] = s.Months[mk].add(c)
}

// AddTransaction accumulates a full transaction with the given sign.
func (s *DeltaSet) AddTransaction(t Transaction, sign int64) {
	s.Add(t.UserID, t.Date, t.Type, t.Amount, sign)
}

// Len returns the number of distinct buckets touched, day plus month level.
func (s *DeltaSet) Len() int {
	return len(s.Days) + len(s.Months)
}
