package macro

import "sort"

// Share is the frequency of one label.
type Share struct {
	Label string  `json:"label"`
	Days  int     `json:"days"`
	Pct   float64 `json:"pct"`
}

// Distribution counts labels and returns them sorted by label name.
func Distribution(labels []string) []Share {
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	out := make([]Share, 0, len(counts))
	for l, n := range counts {
		out = append(out, Share{Label: l, Days: n, Pct: 100 * float64(n) / float64(len(labels))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
