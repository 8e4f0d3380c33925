package dataset

// Summary holds the headline numbers of a dataset.
type Summary struct {
	Territories        int   `json:"territories"`
	Reps               int   `json:"reps"`
	Accounts           int   `json:"accounts"`
	Opportunities      int   `json:"opportunities"`
	HistoryEvents      int   `json:"history_events"`
	Pipeline           int64 `json:"pipeline"`
	MinRevenue         int64 `json:"min_revenue"`
	MaxRevenue         int64 `json:"max_revenue"`
	AccountsInPipeline int   `json:"accounts_in_pipeline"`
	Customers          int   `json:"customers"`
	MissingCloseDates  int   `json:"missing_close_dates"`
}

// Summarize computes ds's Summary. Revenue bounds are 0 when there are no
// accounts.
func Summarize(ds *Dataset) Summary {
	s := Summary{
		Territories:   len(ds.Territories),
		Reps:          len(ds.Reps),
		Accounts:      len(ds.Accounts),
		Opportunities: len(ds.Opportunities),
		HistoryEvents: len(ds.OpportunityHistory),
		Pipeline:      ds.Pipeline(),
	}
	for i, a := range ds.Accounts {
		if i == 0 || a.AnnualRevenue < s.MinRevenue {
			s.MinRevenue = a.AnnualRevenue
		}
		if a.AnnualRevenue > s.MaxRevenue {
			s.MaxRevenue = a.AnnualRevenue
		}
		if a.InPipeline {
			s.AccountsInPipeline++
		}
		if a.IsCustomer {
			s.Customers++
		}
	}
	for _, o := range ds.Opportunities {
		if o.CloseDate == nil {
			s.MissingCloseDates++
		}
	}
	return s
}
