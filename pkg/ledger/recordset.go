package ledger

// RecordSet is the in-memory view of successful changes for one run. It is
// seeded from FetchSuccessful and grows as the run applies changes, so a change
// id repeated later in the same run is skipped too.
type RecordSet struct {
	records map[string]*Record
}

// NewRecordSet builds a set from previously successful records.
func NewRecordSet(records []*Record) *RecordSet {
	rs := &RecordSet{records: make(map[string]*Record, len(records))}
	for _, rec := range records {
		rs.MarkApplied(rec)
	}

	return rs
}

// IsDeployable reports whether id has no recorded success.
func (rs *RecordSet) IsDeployable(id string) bool {
	_, applied := rs.records[id]
	return !applied
}

// MarkApplied adds rec to the set. The first record for an id wins.
func (rs *RecordSet) MarkApplied(rec *Record) {
	if _, ok := rs.records[rec.ID]; ok {
		return
	}

	rs.records[rec.ID] = rec
}

// Len returns the number of applied change ids.
func (rs *RecordSet) Len() int {
	return len(rs.records)
}
