package balancelog

import "cloud.google.com/go/civil"

// LatestPerDate keeps one entry per day, the most recently created.
func LatestPerDate(entries []*Entry) map[civil.Date]*Entry {
	byDate := make(map[civil.Date]*Entry, len(entries))
	for _, e := range entries {
		if existing, ok := byDate[e.Date]; ok && existing.CreatedAt.After(e.CreatedAt) {
			continue
		}
		byDate[e.Date] = e
	}
	return byDate
}

// EarliestDate returns the first day with an entry.
func EarliestDate(byDate map[civil.Date]*Entry) (civil.Date, bool) {
	var earliest civil.Date
	for d := range byDate {
		if !earliest.IsValid() || d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, earliest.IsValid()
}

// FillRange produces one balance per resolvable day of [start, end]. A day
// without an entry carries the last known balance forward; seed is that
// balance going into start. Days before any known balance are omitted.
func FillRange(start, end civil.Date, byDate map[civil.Date]*Entry, seed *Entry) []DailyBalance {
	var balances []DailyBalance
	carry := seed

	for d := start; !d.After(end); d = d.AddDays(1) {
		if e, ok := byDate[d]; ok {
			carry = e
		}
		if carry == nil {
			continue
		}
		balances = append(balances, DailyBalance{
			Date:      d,
			Available: copyFloat(carry.Available),
			Current:   copyFloat(carry.Current),
		})
	}

	return balances
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
