package fetcher

import (
	"strings"

	"github.com/sells-group/funding-cli/pkg/searchapi"
)

// PickBest chooses the one result that describes identifier. The Search API
// returns the same topic once per language, alongside loosely related hits.
// Results whose metadata identifier equals identifier win, then results that
// mention it; within the winning tier English beats other languages, a
// result with text beats an empty one, and higher weight breaks ties. The
// earliest result wins remaining ties.
func PickBest(results []searchapi.Result, identifier string) (searchapi.Result, bool) {
	if len(results) == 0 {
		return searchapi.Result{}, false
	}

	var exact, partial []searchapi.Result
	for _, r := range results {
		switch matchIdentifier(r, identifier) {
		case matchExact:
			exact = append(exact, r)
		case matchPartial:
			partial = append(partial, r)
		}
	}

	tier := results
	switch {
	case len(exact) > 0:
		tier = exact
	case len(partial) > 0:
		tier = partial
	}

	best := tier[0]
	bestScore := resultScore(best)
	for _, r := range tier[1:] {
		if s := resultScore(r); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best, true
}

type matchKind int

const (
	matchNone matchKind = iota
	matchPartial
	matchExact
)

func matchIdentifier(r searchapi.Result, identifier string) matchKind {
	kind := matchNone
	for _, id := range r.Meta("identifier") {
		id = strings.TrimSpace(id)
		if strings.EqualFold(id, identifier) {
			return matchExact
		}
		if strings.Contains(strings.ToUpper(id), strings.ToUpper(identifier)) {
			kind = matchPartial
		}
	}
	return kind
}

func resultScore(r searchapi.Result) float64 {
	score := r.Weight
	if strings.EqualFold(r.Language, "en") {
		score += 1000
	}
	if r.Summary != "" || r.Content != "" {
		score += 10
	}
	return score
}
