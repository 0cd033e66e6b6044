// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package types

import "time"

// RequestStats records the outcome of warming up a single origin.
type RequestStats struct {
	Origin Origin `json:"origin"`
	// WasCached is true if the name resolution was answered from the
	// resolver cache instead of going out on the wire.
	WasCached bool `json:"cached"`
	// WasPreconnected is true if a preconnect was issued for this origin.
	WasPreconnected bool `json:"preconnected"`
}

// PreconnectStats aggregates the outcomes of all warm-up jobs belonging to
// one navigation. Only successfully resolved origins appear in Requests.
type PreconnectStats struct {
	URL      string         `json:"url"`
	Start    time.Time      `json:"start"`
	Requests []RequestStats `json:"requests"`
}

// NewPreconnectStats returns stats for a navigation to the given URL,
// starting now.
func NewPreconnectStats(url string) *PreconnectStats {
	return &PreconnectStats{
		URL:   url,
		Start: time.Now(),
	}
}
