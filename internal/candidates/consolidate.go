// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package candidates

import (
	"fmt"
	"sort"
)

// AggregatePolicy merges a track's per-source percentile ranks into one
// final score.
type AggregatePolicy func(percentiles map[Source]float64) float64

// SumPolicy rewards consensus: a track proposed by several sources sums
// their percentiles, so two middling endorsements beat one strong one.
func SumPolicy(percentiles map[Source]float64) float64 {
	var sum float64
	for _, p := range percentiles {
		sum += p
	}
	return sum
}

// MaxPolicy keeps the single strongest endorsement.
func MaxPolicy(percentiles map[Source]float64) float64 {
	var max float64
	for _, p := range percentiles {
		if p > max {
			max = p
		}
	}
	return max
}

// PolicyFor maps a configured policy name to its implementation.
func PolicyFor(name string) (AggregatePolicy, error) {
	switch name {
	case "sum":
		return SumPolicy, nil
	case "max":
		return MaxPolicy, nil
	default:
		return nil, fmt.Errorf("unknown aggregation policy %q", name)
	}
}

// Consolidate merges per-source candidate lists into one ranked list.
//
// Raw scores are incomparable across sources, so each source's records
// are first converted to percentile ranks in (0, 1]: the source's best
// record gets 1.0, its worst 1/n, ties sharing a raw score get the
// average of their positions. The policy then aggregates each track's
// percentiles into the final score. The result is sorted by descending
// final score with ties broken by ascending track key, holds no
// duplicate keys, and carries 1-based ranks.
func Consolidate(bySource map[Source][]Record, policy AggregatePolicy) []Consolidated {
	merged := make(map[string]*Consolidated)

	for source, records := range bySource {
		percentiles := percentileRanks(records)
		for i, rec := range records {
			c, ok := merged[rec.TrackKey]
			if !ok {
				c = &Consolidated{
					TrackKey:    rec.TrackKey,
					TrackName:   rec.TrackName,
					ArtistName:  rec.ArtistName,
					Percentiles: make(map[Source]float64, 2),
				}
				merged[rec.TrackKey] = c
			}
			c.Percentiles[source] = percentiles[i]
		}
	}

	out := make([]Consolidated, 0, len(merged))
	for _, c := range merged {
		c.FinalScore = policy(c.Percentiles)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].TrackKey < out[j].TrackKey
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// percentileRanks converts raw scores to percentile ranks in (0, 1],
// index-aligned with records. Records tied on raw score receive the
// average of the positions they span.
func percentileRanks(records []Record) []float64 {
	n := len(records)
	if n == 0 {
		return nil
	}

	// Order ascending by raw score; position/n is the percentile.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return records[order[a]].RawScore < records[order[b]].RawScore
	})

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && records[order[j]].RawScore == records[order[i]].RawScore {
			j++
		}
		// Positions i+1 .. j (1-based) share this raw score.
		avg := float64(i+1+j) / 2.0
		p := avg / float64(n)
		for k := i; k < j; k++ {
			out[order[k]] = p
		}
		i = j
	}
	return out
}
