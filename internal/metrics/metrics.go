// Package metrics keeps a capped log of analysis snapshots and summarizes it.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/chalamandra/internal/analysis"
	"github.com/hyperifyio/chalamandra/internal/kvstore"
)

const (
	// StorageKey is the key the log is stored under.
	StorageKey = "analysisMetrics"
	// DefaultMax is the number of most recent records kept.
	DefaultMax = 100
	// successThreshold is the resonance a run must exceed to count as a success.
	successThreshold = 0.5
	topDomains       = 5
)

// Record is a snapshot derived from one report.
type Record struct {
	Timestamp        string  `json:"timestamp"`
	ContentLength    int     `json:"contentLength"`
	LayersAnalyzed   int     `json:"layersAnalyzed"`
	ResonanceScore   float64 `json:"resonanceScore"`
	ProcessingTimeMs int64   `json:"processingTime"`
	Domain           string  `json:"domain,omitempty"`
}

// FromReport derives a record. Processing time is measured from the
// report's start to now.
func FromReport(r analysis.Report, now time.Time) Record {
	elapsed := now.Sub(r.StartedAt).Milliseconds()
	if r.StartedAt.IsZero() || elapsed < 0 {
		elapsed = r.ElapsedMs
	}
	return Record{
		Timestamp:        r.Timestamp,
		ContentLength:    r.ContentLength,
		LayersAnalyzed:   r.Layers.Fulfilled(),
		ResonanceScore:   r.Resonance,
		ProcessingTimeMs: elapsed,
		Domain:           domainOf(r.URL),
	}
}

func domainOf(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// DomainCount is one entry of the most frequent domains list.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// PerformanceReport summarizes the log.
type PerformanceReport struct {
	TotalAnalyses         int           `json:"totalAnalyses"`
	AverageResonance      float64       `json:"averageResonance"`
	AverageProcessingTime float64       `json:"averageProcessingTime"`
	SuccessRate           float64       `json:"successRate"`
	MostFrequentDomains   []DomainCount `json:"mostFrequentDomains"`
}

// Log is a FIFO-capped list of records kept in a Store. Append is a
// read-modify-write; it is serialized within the process only, so two
// processes sharing one store can lose records.
type Log struct {
	Store kvstore.Store
	// Max is the retention cap. Zero means DefaultMax.
	Max int

	mu sync.Mutex
}

// Append adds rec and evicts the oldest records beyond the cap.
func (l *Log) Append(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.load(ctx)
	if err != nil {
		return err
	}
	records = append(records, rec)
	if max := l.max(); len(records) > max {
		records = records[len(records)-max:]
	}
	b, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := l.Store.Set(ctx, StorageKey, b); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

// Records returns the stored records, oldest first.
func (l *Log) Records(ctx context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Report computes the performance report over the stored records.
func (l *Log) Report(ctx context.Context) (PerformanceReport, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return PerformanceReport{}, err
	}
	return Summarize(records), nil
}

func (l *Log) load(ctx context.Context) ([]Record, error) {
	if l.Store == nil {
		return nil, fmt.Errorf("metrics: no store configured")
	}
	b, ok, err := l.Store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	if !ok || len(b) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return records, nil
}

func (l *Log) max() int {
	if l.Max > 0 {
		return l.Max
	}
	return DefaultMax
}

// Summarize computes averages, the success rate (resonance above 0.5) and
// the top domains. Every ratio is zero for an empty slice.
func Summarize(records []Record) PerformanceReport {
	rep := PerformanceReport{TotalAnalyses: len(records), MostFrequentDomains: []DomainCount{}}
	if len(records) == 0 {
		return rep
	}
	var resonance, elapsed float64
	success := 0
	counts := map[string]int{}
	for _, r := range records {
		resonance += r.ResonanceScore
		elapsed += float64(r.ProcessingTimeMs)
		if r.ResonanceScore > successThreshold {
			success++
		}
		if r.Domain != "" {
			counts[r.Domain]++
		}
	}
	n := float64(len(records))
	rep.AverageResonance = resonance / n
	rep.AverageProcessingTime = elapsed / n
	rep.SuccessRate = float64(success) / n

	for d, c := range counts {
		rep.MostFrequentDomains = append(rep.MostFrequentDomains, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(rep.MostFrequentDomains, func(i, j int) bool {
		a, b := rep.MostFrequentDomains[i], rep.MostFrequentDomains[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Domain < b.Domain
	})
	if len(rep.MostFrequentDomains) > topDomains {
		rep.MostFrequentDomains = rep.MostFrequentDomains[:topDomains]
	}
	return rep
}
