package diff

// Summary aggregates a diff into counts
type Summary struct {
	TotalChanges    int  `json:"total_changes"`
	NewTables       int  `json:"new_tables"`
	RemovedTables   int  `json:"removed_tables"`
	ModifiedTables  int  `json:"modified_tables"`
	BreakingChanges bool `json:"breaking_changes"`
}

// Summarize counts the changes in d. TotalChanges sums the column (and,
// when compared, index) changes of every modified table; the table counts
// count tables.
func Summarize(d *Diff, policy Policy) Summary {
	if d == nil {
		return Summary{}
	}

	s := Summary{
		NewTables:       len(d.NewTables),
		RemovedTables:   len(d.RemovedTables),
		ModifiedTables:  len(d.ModifiedTables),
		BreakingChanges: policy.IsBreaking(d),
	}
	for _, td := range d.ModifiedTables {
		s.TotalChanges += td.ColumnChangeCount() + td.IndexChangeCount()
	}
	return s
}
