// Package patterns mines recurring failure shapes from investigation history,
// giving operators a per-service view of what keeps breaking.
package patterns

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/faultlens/faultlens-agent/internal/models"
)

// Miner aggregates investigation records into failure patterns. minSupport
// drops one-off incidents from the output.
type Miner struct {
	minSupport int
}

// NewMiner constructs a Miner. minSupport below 1 defaults to 2 so a pattern
// needs at least two occurrences to count as recurring.
func NewMiner(minSupport int) *Miner {
	if minSupport < 1 {
		minSupport = 2
	}
	return &Miner{minSupport: minSupport}
}

type bucket struct {
	service     string
	symptom     string
	occurrences int
	confidence  float64
	decided     int
	rootCauses  map[string]int
	lastSeen    models.InvestigationRecord
}

// Mine groups records by service and symptom and reports the groups that
// recur at least minSupport times. Output order is stable: occurrences
// descending, then name.
func (m *Miner) Mine(records []models.InvestigationRecord) []models.FailurePattern {
	buckets := make(map[string]*bucket)
	perService := make(map[string]int)

	for _, rec := range records {
		service := rec.Alert.Service
		if service == "" {
			continue
		}
		perService[service]++

		key := service + "/" + string(rec.Alert.Symptom)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{service: service, symptom: string(rec.Alert.Symptom), rootCauses: make(map[string]int)}
			buckets[key] = b
		}
		b.occurrences++
		if rec.Decision != nil {
			b.confidence += rec.Decision.Confidence
			b.decided++
			if cause := strings.TrimSpace(rec.Decision.RootCause); cause != "" {
				b.rootCauses[cause]++
			}
		}
		if rec.CompletedAt.After(b.lastSeen.CompletedAt) {
			b.lastSeen = rec
		}
	}

	out := make([]models.FailurePattern, 0, len(buckets))
	for _, b := range buckets {
		if b.occurrences < m.minSupport {
			continue
		}
		pattern := models.FailurePattern{
			ID:            uuid.NewString(),
			Service:       b.service,
			Name:          fmt.Sprintf("%s %s incidents", b.service, b.symptom),
			Occurrences:   b.occurrences,
			Prevalence:    float64(b.occurrences) / float64(perService[b.service]),
			TopRootCauses: topRootCauses(b.rootCauses, 3),
			LastSeen:      b.lastSeen.CompletedAt,
		}
		if b.decided > 0 {
			pattern.AvgConfidence = b.confidence / float64(b.decided)
		}
		out = append(out, pattern)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func topRootCauses(counts map[string]int, limit int) []string {
	type entry struct {
		cause string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for cause, count := range counts {
		entries = append(entries, entry{cause, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].cause < entries[j].cause
	})

	out := make([]string, 0, limit)
	for i, e := range entries {
		if i >= limit {
			break
		}
		out = append(out, e.cause)
	}
	return out
}
