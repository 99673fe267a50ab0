// Package lecture contains the core domain types for the community service lecture notifier.
package lecture

// Record represents one discovered community service lecture.
// Every field except SourceURL is optional: the extraction model reports
// fields it cannot find as null rather than guessing.
type Record struct {
	Title                *string `json:"title"`
	Date                 *string `json:"date"`
	Time                 *string `json:"time"`
	Location             *string `json:"location"`
	ActivityHours        *string `json:"activity_hours"`
	Restrictions         *string `json:"restrictions"`
	MaxRegistrations     *int    `json:"max_registrations"`
	CurrentRegistrations *int    `json:"current_registrations"`
	StartDate            *string `json:"start_date"` // Registration window opens
	EndDate              *string `json:"end_date"`   // Registration window closes
	OfficerName          *string `json:"officer_name"`
	OfficerEmail         *string `json:"officer_email"`
	OfficerPhone         *string `json:"officer_phone"`
	SourceURL            string  `json:"source_url"` // Identity key across runs
}

// State maps SourceURL to the record already notified about.
type State map[string]*Record

// Has reports whether an event with the given source URL was seen before.
func (s State) Has(sourceURL string) bool {
	_, ok := s[sourceURL]
	return ok
}

// Merge returns a new state holding every entry of s plus the given records.
// Entries are only ever added; a record whose key already exists replaces
// the stored one, so the newest extraction wins.
func (s State) Merge(records []*Record) State {
	merged := make(State, len(s)+len(records))
	for k, v := range s {
		merged[k] = v
	}
	for _, r := range records {
		if r == nil || r.SourceURL == "" {
			continue
		}
		merged[r.SourceURL] = r
	}
	return merged
}

// Reconcile returns the records of current whose SourceURL is not a key of previous,
// in the order they appear in current. Only key presence is compared; field values
// can differ between runs for the same page and are ignored.
func Reconcile(current []*Record, previous State) []*Record {
	var fresh []*Record
	for _, r := range current {
		if r == nil {
			continue
		}
		if previous.Has(r.SourceURL) {
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Int returns a pointer to n.
func Int(n int) *int {
	return &n
}
