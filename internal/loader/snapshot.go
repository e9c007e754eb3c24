// Package loader implements the dashboard's staged market-data load and
// the background section sequencer. Quote sections are fetched in priority
// tiers over the dashboard API, merged into a shared snapshot cache, and
// re-rendered after every stage; the heavier background sections run one
// at a time afterwards.
package loader

import (
	"sort"
	"sync"
	"time"

	"github.com/wyhuang/marketdash/pkg/models"
)

// SectionOrder is the display order of the quote sections.
var SectionOrder = []string{
	models.SectionUSIndices,
	models.SectionUSStocks,
	models.SectionTWMarkets,
	models.SectionInternational,
	models.SectionMetalsFutures,
	models.SectionCrypto,
	models.SectionRatios,
}

// SectionState is what a render sees for one section.
type SectionState struct {
	Key     string
	Payload models.SectionPayload // nil while loading or errored
	Ratios  *models.RatioSummary  // set only for the ratios section
	Err     string                // non-empty when the owning stage failed
}

// Loaded reports whether the section holds data.
func (s SectionState) Loaded() bool {
	return s.Payload != nil || s.Ratios != nil
}

// RenderState is an immutable copy of the snapshot handed to a renderer.
type RenderState struct {
	Sections        []SectionState
	MetalsSession   string
	MetalsSessionET string
	Earnings        []models.EarningsEntry
	EarningsTW      []models.EarningsEntry
	Skipped         []models.SkippedSymbol
	Timestamp       time.Time
}

// Snapshot is the session-lifetime cache of fetched sections. Each stage
// owns a disjoint set of keys; merging copies only the keys present in
// that stage's response, so a stage can never clear data it did not fetch.
type Snapshot struct {
	mu       sync.RWMutex
	sections map[string]models.SectionPayload
	ratios   *models.RatioSummary
	errs     map[string]string

	metalsSession   string
	metalsSessionET string
	earnings        []models.EarningsEntry
	earningsTW      []models.EarningsEntry
	skipped         []models.SkippedSymbol
	timestamp       time.Time
}

// NewSnapshot creates an empty snapshot cache.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		sections: make(map[string]models.SectionPayload),
		errs:     make(map[string]string),
	}
}

// Merge copies the sections present in the summary into the cache and
// clears any error recorded against them. Absent sections are left alone.
func (s *Snapshot) Merge(summary *models.MarketSummary) {
	if summary == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, payload := range summary.Sections() {
		s.sections[key] = payload
		delete(s.errs, key)
	}
	if summary.Ratios != nil {
		s.ratios = summary.Ratios
		delete(s.errs, models.SectionRatios)
	}
	if summary.MetalsSession != "" {
		s.metalsSession = summary.MetalsSession
		s.metalsSessionET = summary.MetalsSessionET
	}
	if summary.EarningsUpcoming != nil {
		s.earnings = summary.EarningsUpcoming
	}
	if summary.EarningsUpcomingTW != nil {
		s.earningsTW = summary.EarningsUpcomingTW
	}
	if len(summary.SkippedSymbols) > 0 {
		s.skipped = summary.SkippedSymbols
	}
	if !summary.Timestamp.IsZero() {
		s.timestamp = summary.Timestamp
	}
}

// SetError records an error banner for the given sections. Cached data for
// those keys is kept; the error overlays it.
func (s *Snapshot) SetError(msg string, sections ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range sections {
		s.errs[key] = msg
	}
}

// Section returns the cached payload for a key, if loaded.
func (s *Snapshot) Section(key string) (models.SectionPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.sections[key]
	return p, ok
}

// State builds an immutable render state covering every known section in
// display order. Sections never fetched come back with a nil payload.
func (s *Snapshot) State() *RenderState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &RenderState{
		MetalsSession:   s.metalsSession,
		MetalsSessionET: s.metalsSessionET,
		Earnings:        s.earnings,
		EarningsTW:      s.earningsTW,
		Skipped:         s.skipped,
		Timestamp:       s.timestamp,
	}
	keys := append([]string(nil), SectionOrder...)
	// Unknown keys the server may add sort after the known ones.
	var extra []string
	for key := range s.sections {
		if !contains(keys, key) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	for _, key := range keys {
		sec := SectionState{Key: key, Err: s.errs[key]}
		if key == models.SectionRatios {
			sec.Ratios = s.ratios
		} else if p, ok := s.sections[key]; ok {
			sec.Payload = p
		}
		st.Sections = append(st.Sections, sec)
	}
	return st
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
