package render

import (
	"log"
	"sort"
)

// FilterAndRenormalize masks out species not present in includedSpecies,
// renormalizes the retained probabilities to sum to 1, and returns the
// resulting top-1 species and its renormalized confidence. A nil or empty
// includedSpecies means every model class is permitted. If the filter masks
// every class — a configuration error — it falls back to the unfiltered
// top-1 and logs a warning rather than silently returning nothing.
func FilterAndRenormalize(probabilities map[string]float64, includedSpecies []string) (species string, confidence float64) {
	if len(includedSpecies) == 0 {
		return top1(probabilities)
	}

	allowed := make(map[string]bool, len(includedSpecies))
	for _, s := range includedSpecies {
		allowed[s] = true
	}

	retained := make(map[string]float64)
	var sum float64
	for s, p := range probabilities {
		if allowed[s] {
			retained[s] = p
			sum += p
		}
	}

	if len(retained) == 0 {
		log.Printf("render: species filter masked every class in this project's included_species list; falling back to unfiltered top-1")
		return top1(probabilities)
	}

	for s := range retained {
		retained[s] = retained[s] / sum
	}
	return top1(retained)
}

func top1(probabilities map[string]float64) (string, float64) {
	type pair struct {
		species string
		conf    float64
	}
	pairs := make([]pair, 0, len(probabilities))
	for s, p := range probabilities {
		pairs = append(pairs, pair{s, p})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].conf != pairs[j].conf {
			return pairs[i].conf > pairs[j].conf
		}
		return pairs[i].species < pairs[j].species
	})
	if len(pairs) == 0 {
		return "", 0
	}
	return pairs[0].species, pairs[0].conf
}
