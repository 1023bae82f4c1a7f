package address

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// Confidence assigned by the non-fuzzy tiers.
const (
	ExactConfidence      = 100
	NormalizedConfidence = 95
)

// DefaultMinConfidence is the fuzzy threshold used when the caller has no preference.
const DefaultMinConfidence = 70

// Errors returned by the matcher.
var (
	ErrEmptyAddress      = errors.New("address is empty")
	ErrInvalidConfidence = errors.New("minimum confidence must be between 0 and 100")
)

// Tier names the strategy that produced a result.
type Tier string

// Tiers in evaluation order. TierNone means all tiers ran without a candidate.
const (
	TierExact      Tier = "exact"
	TierNormalized Tier = "normalized"
	TierFuzzy      Tier = "fuzzy"
	TierNone       Tier = "none"
)

// Candidate is one parcel proposed for an address.
type Candidate struct {
	StandardizedAddress string             `json:"standardizedAddress"`
	ParcelNumber        string             `json:"parcelNumber"`
	MatchMethod         models.MatchMethod `json:"matchMethod"`
	ConfidenceScore     float64            `json:"confidenceScore"`
}

// Result is the outcome of one resolution attempt.
type Result struct {
	SourceAddress string      `json:"sourceAddress"`
	Standardized  string      `json:"standardizedAddress"`
	Tier          Tier        `json:"tier"`
	Candidates    []Candidate `json:"candidates"`
	// BestScore is the highest fuzzy score seen, even below the threshold.
	BestScore int `json:"bestScore"`
}

// Matched reports whether at least one candidate met the threshold.
func (r Result) Matched() bool {
	return len(r.Candidates) > 0
}

// Best returns the top candidate, if any.
func (r Result) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Audit builds the AddressMatch row recording this attempt. Failed attempts carry a
// nil parcel and standardized address, the Fuzzy method, and the best score seen.
func (r Result) Audit(recordID, jobID *uuid.UUID, now time.Time) *models.AddressMatch {
	m := &models.AddressMatch{
		ID:              uuid.New(),
		SourceAddress:   r.SourceAddress,
		StagingRecordID: recordID,
		JobID:           jobID,
		CreatedAt:       now,
	}
	best, ok := r.Best()
	if !ok {
		m.MatchMethod = models.MatchMethodFuzzy
		m.ConfidenceScore = float64(r.BestScore)
		return m
	}
	parcel := best.ParcelNumber
	standardized := best.StandardizedAddress
	m.ParcelNumber = &parcel
	m.StandardizedAddress = &standardized
	m.MatchMethod = best.MatchMethod
	m.ConfidenceScore = best.ConfidenceScore
	return m
}

// Matcher resolves addresses against an Index. It never writes to the index.
type Matcher struct {
	index  *Index
	scorer Scorer
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithScorer replaces the fuzzy similarity function.
func WithScorer(s Scorer) Option {
	return func(m *Matcher) {
		m.scorer = s
	}
}

// NewMatcher creates a Matcher over idx.
func NewMatcher(idx *Index, opts ...Option) *Matcher {
	if idx == nil {
		idx = NewIndex(nil)
	}
	m := &Matcher{index: idx, scorer: TokenSortRatio}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Index returns the index the matcher reads.
func (m *Matcher) Index() *Index {
	return m.index
}

// Match resolves address to parcel candidates. Tiers short-circuit: once the exact or
// normalized-exact tier finds an equal address, fuzzy scoring is not attempted.
// Only candidates scoring at least minConfidence are returned; an empty result is
// not an error.
func (m *Matcher) Match(address string, minConfidence float64) (Result, error) {
	if minConfidence < 0 || minConfidence > 100 {
		return Result{}, fmt.Errorf("%w: got %v", ErrInvalidConfidence, minConfidence)
	}
	if strings.TrimSpace(address) == "" {
		return Result{}, ErrEmptyAddress
	}

	normalized := Normalize(address)
	res := Result{SourceAddress: address, Standardized: normalized, Tier: TierNone}

	// Tier 1: exact on the normalized form
	if hits := m.index.exact(normalized); len(hits) > 0 {
		res.Tier = TierExact
		res.Candidates = fixed(hits, ExactConfidence, minConfidence, func(e Entry) string { return e.Normalized })
		return res, nil
	}

	// Tier 2: exact on the primary line without unit designators
	primary := Primary(address)
	if primary != "" {
		if hits := m.index.primary(primary); len(hits) > 0 {
			res.Tier = TierNormalized
			res.Candidates = fixed(hits, NormalizedConfidence, minConfidence, func(e Entry) string { return e.Primary })
			return res, nil
		}
	}

	// Tier 3: fuzzy over every indexed address
	var candidates []Candidate
	for _, e := range m.index.entries {
		score := m.scorer(normalized, e.Normalized)
		if primary != "" && e.Primary != "" {
			if s := m.scorer(primary, e.Primary); s > score {
				score = s
			}
		}
		if score > res.BestScore {
			res.BestScore = score
		}
		if float64(score) < minConfidence {
			continue
		}
		candidates = append(candidates, Candidate{
			StandardizedAddress: e.Normalized,
			ParcelNumber:        e.ParcelNumber,
			MatchMethod:         models.MatchMethodFuzzy,
			ConfidenceScore:     float64(score),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ConfidenceScore != candidates[j].ConfidenceScore {
			return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
		}
		return candidates[i].ParcelNumber < candidates[j].ParcelNumber
	})
	if len(candidates) > 0 {
		res.Tier = TierFuzzy
	}
	res.Candidates = candidates
	return res, nil
}

// fixed converts tier-1/2 hits into candidates at a fixed confidence.
// Hits arrive in parcel-number order; a parcel listed twice is reported once.
func fixed(hits []Entry, confidence int, minConfidence float64, form func(Entry) string) []Candidate {
	if float64(confidence) < minConfidence {
		return nil
	}
	seen := make(map[string]bool, len(hits))
	out := make([]Candidate, 0, len(hits))
	for _, e := range hits {
		if seen[e.ParcelNumber] {
			continue
		}
		seen[e.ParcelNumber] = true
		out = append(out, Candidate{
			StandardizedAddress: form(e),
			ParcelNumber:        e.ParcelNumber,
			MatchMethod:         models.MatchMethodExact,
			ConfidenceScore:     float64(confidence),
		})
	}
	return out
}
