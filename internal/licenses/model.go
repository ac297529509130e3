package licenses

import "time"

// Usage is a company's seat allocation for the current license term.
type Usage struct {
	CompanyID   string    `json:"companyId"`
	Seats       int       `json:"seats"`
	Used        int       `json:"used"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// Available returns the unassigned seat count.
func (u Usage) Available() int {
	if u.Used >= u.Seats {
		return 0
	}
	return u.Seats - u.Used
}

// Expired reports whether the term ended at or before now.
func (u Usage) Expired(now time.Time) bool {
	return !now.Before(u.PeriodEnd)
}
