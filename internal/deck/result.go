package deck

import (
	"encoding/json"
	"math"

	"github.com/ranielm/planning-poker-sub000/internal/models"
)

// Result is the aggregate outcome of a revealed round. Exactly two
// variants exist, one per scheme; consumers switch on the concrete type.
type Result interface {
	ResultScheme() models.Scheme
	isResult()
}

// FibonacciResult carries the numeric aggregate of a fibonacci round.
type FibonacciResult struct {
	Average        float64        `json:"average"`
	Suggestion     int            `json:"suggestion"`
	Distribution   map[string]int `json:"distribution"`
	IsConsensus    bool           `json:"is_consensus"`
	ConsensusValue string         `json:"consensus_value,omitempty"`
	TotalVotes     int            `json:"total_votes"`
	SkippedVotes   int            `json:"skipped_votes"`
}

func (FibonacciResult) ResultScheme() models.Scheme { return models.SchemeFibonacci }
func (FibonacciResult) isResult()                   {}

// MarshalJSON tags the variant so clients can discriminate without
// guessing from field presence.
func (r FibonacciResult) MarshalJSON() ([]byte, error) {
	type alias FibonacciResult
	return json.Marshal(struct {
		Scheme models.Scheme `json:"scheme"`
		alias
	}{Scheme: models.SchemeFibonacci, alias: alias(r)})
}

// TShirtResult carries the modal aggregate of a t-shirt round.
type TShirtResult struct {
	Mode           string         `json:"mode"`
	ModeCount      int            `json:"mode_count"`
	Distribution   map[string]int `json:"distribution"`
	IsConsensus    bool           `json:"is_consensus"`
	ConsensusValue string         `json:"consensus_value,omitempty"`
	TotalVotes     int            `json:"total_votes"`
	SkippedVotes   int            `json:"skipped_votes"`
}

func (TShirtResult) ResultScheme() models.Scheme { return models.SchemeTShirt }
func (TShirtResult) isResult()                   {}

func (r TShirtResult) MarshalJSON() ([]byte, error) {
	type alias TShirtResult
	return json.Marshal(struct {
		Scheme models.Scheme `json:"scheme"`
		alias
	}{Scheme: models.SchemeTShirt, alias: alias(r)})
}

// Aggregate turns the raw vote values of a round into a Result. It is pure
// and order-insensitive: the same multiset of values always produces the
// same output. Sentinel cards count as skipped; values that are not legal
// for the scheme are ignored entirely.
func Aggregate(scheme models.Scheme, values []string) Result {
	switch scheme {
	case models.SchemeTShirt:
		return aggregateTShirt(values)
	default:
		return aggregateFibonacci(values)
	}
}

func aggregateFibonacci(values []string) FibonacciResult {
	res := FibonacciResult{Distribution: make(map[string]int)}
	sum := 0
	counted := 0
	for _, raw := range values {
		res.TotalVotes++
		if isSkip(raw) {
			res.SkippedVotes++
			continue
		}
		v, ok := fibonacciValue(raw)
		if !ok {
			continue
		}
		res.Distribution[raw]++
		sum += v
		counted++
	}
	if counted == 0 {
		return res
	}
	avg := float64(sum) / float64(counted)
	res.Average = math.Round(avg*100) / 100
	res.Suggestion = nearestFibonacci(avg)
	if len(res.Distribution) == 1 {
		res.IsConsensus = true
		for value := range res.Distribution {
			res.ConsensusValue = value
		}
	}
	return res
}

// nearestFibonacci rounds to the closest sequence value; on an exact tie
// the smaller candidate wins because it is seen first and later candidates
// must be strictly closer to replace it.
func nearestFibonacci(avg float64) int {
	best := fibonacciValues[0]
	bestDist := math.Abs(avg - float64(best))
	for _, v := range fibonacciValues[1:] {
		if d := math.Abs(avg - float64(v)); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

func aggregateTShirt(values []string) TShirtResult {
	res := TShirtResult{Distribution: make(map[string]int)}
	for _, raw := range values {
		res.TotalVotes++
		if isSkip(raw) {
			res.SkippedVotes++
			continue
		}
		ord := tshirtOrdinal(raw)
		if ord < 0 {
			continue
		}
		res.Distribution[tshirtSizes[ord]]++
	}
	// Walk sizes in ascending order with >= so a tie lands on the larger
	// size.
	for _, size := range tshirtSizes {
		if n := res.Distribution[size]; n > 0 && n >= res.ModeCount {
			res.Mode, res.ModeCount = size, n
		}
	}
	if len(res.Distribution) == 1 {
		res.IsConsensus = true
		res.ConsensusValue = res.Mode
	}
	return res
}
