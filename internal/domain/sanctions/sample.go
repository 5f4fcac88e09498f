package sanctions

import "time"

// sampleWatchlist seeds offline deployments and the load generator
var sampleWatchlist = []Entity{
	{ID: "sample-0001", Name: "Juan Perez", Programs: []string{"OFAC-SDN"}, Country: "ve"},
	{ID: "sample-0002", Name: "Maria Gonzalez", Programs: []string{"OFAC-SDN"}, Country: "co"},
	{ID: "sample-0003", Name: "Viktor Petrov", Programs: []string{"EU-FSF"}, Country: "ru"},
	{ID: "sample-0004", Name: "Ahmad Karimi", Programs: []string{"UN-SC"}, Country: "ir"},
	{ID: "sample-0005", Name: "Li Wei Trading Co", Programs: []string{"OFAC-SDN"}, Country: "cn"},
	{ID: "sample-0006", Name: "Golden Crescent Holdings", Programs: []string{"UK-HMT"}, Country: "ae"},
	{ID: "sample-0007", Name: "Omar Haddad", Programs: []string{"UN-SC"}, Country: "sy"},
	{ID: "sample-0008", Name: "Northern Star Shipping", Programs: []string{"EU-FSF", "OFAC-SDN"}, Country: "kp"},
}

// SampleWatchlist returns a copy of the built-in watchlist stamped with at
func SampleWatchlist(at time.Time) []Entity {
	out := make([]Entity, len(sampleWatchlist))
	for i, e := range sampleWatchlist {
		e.Programs = append([]string(nil), e.Programs...)
		e.LastUpdated = at.UTC()
		out[i] = e
	}
	return out
}

// SampleNames returns the names of the built-in watchlist
func SampleNames() []string {
	out := make([]string, len(sampleWatchlist))
	for i, e := range sampleWatchlist {
		out[i] = e.Name
	}
	return out
}
