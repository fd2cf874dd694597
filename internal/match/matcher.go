// Package match scores how likely two identity records describe the same
// person. Scoring is a pure function of the two records and the merge
// configuration.
package match

import (
	"math"

	"github.com/sells-group/lead-identity/internal/config"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/normalize"
)

// Epsilon absorbs float error when comparing scores against thresholds, so
// a score that is mathematically equal to a threshold reaches it.
const Epsilon = 1e-9

// Name sub-score split between last and first name.
const (
	lastNameShare  = 0.6
	firstNameShare = 0.4
)

// Address composite split.
const (
	streetShare = 0.5
	cityShare   = 0.2
	stateShare  = 0.1
	zipShare    = 0.2
)

const (
	partialPhoneScore = 0.5
	mailboxEmailScore = 0.9
)

// Matcher scores record pairs. It holds no mutable state and is safe for
// concurrent use.
type Matcher struct {
	cfg config.MergeConfig
}

// New returns a Matcher for cfg. The config is assumed valid; see
// ValidateConfig.
func New(cfg config.MergeConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// Config returns the matcher's merge configuration.
func (m *Matcher) Config() config.MergeConfig {
	return m.cfg
}

// Score compares two records field by field and aggregates the weighted
// result. Fields absent from either record contribute nothing, so sparse
// records score lower than fully matching ones. Score(a, b) and Score(b, a)
// produce the same overall score.
func (m *Matcher) Score(a, b identity.IdentityRecord) identity.IdentityMatchResult {
	result := identity.IdentityMatchResult{
		SourceID: a.ID,
		TargetID: b.ID,
	}

	scorers := []func(a, b identity.IdentityRecord) (identity.MatchDetail, bool){
		m.scoreName,
		m.scorePhone,
		m.scoreEmail,
		m.scoreAddress,
	}

	var total float64
	for _, score := range scorers {
		d, ok := score(a, b)
		if !ok {
			continue
		}
		total += d.Score * d.Weight
		result.MatchDetails = append(result.MatchDetails, d)
	}

	result.OverallScore = clamp(total)
	result.Confidence = m.Classify(result.OverallScore)
	result.ShouldMerge = result.Confidence == identity.ConfidenceHigh
	return result
}

// Classify buckets a score against the auto-merge and review thresholds.
func (m *Matcher) Classify(score float64) identity.Confidence {
	switch {
	case score+Epsilon >= m.cfg.AutoMergeThreshold:
		return identity.ConfidenceHigh
	case score+Epsilon >= m.cfg.ReviewThreshold:
		return identity.ConfidenceMedium
	default:
		return identity.ConfidenceLow
	}
}

// AtLeast reports whether score reaches threshold within Epsilon.
func AtLeast(score, threshold float64) bool {
	return score+Epsilon >= threshold
}

func (m *Matcher) scoreName(a, b identity.IdentityRecord) (identity.MatchDetail, bool) {
	na, nb := normalize.RecordName(a), normalize.RecordName(b)
	if na.Last == "" || nb.Last == "" {
		return identity.MatchDetail{}, false
	}

	last, lastType := m.compareNamePart(na.Last, nb.Last, false)
	first, firstType := 0.0, identity.MatchNone
	if na.First != "" && nb.First != "" {
		first, firstType = m.compareNamePart(na.First, nb.First, true)
	}

	score := lastNameShare*last + firstNameShare*first
	return identity.MatchDetail{
		Field:       identity.FieldName,
		SourceValue: displayName(na),
		TargetValue: displayName(nb),
		Score:       clamp(score),
		MatchType:   nameMatchType(score, lastType, firstType),
		Weight:      m.cfg.Weights.Name,
	}, true
}

// compareNamePart scores one name component. Given names also match
// through the nickname table.
func (m *Matcher) compareNamePart(a, b string, given bool) (float64, identity.MatchType) {
	if a == b {
		return 1, identity.MatchExact
	}
	if given && normalize.NamesEquivalent(a, b) {
		return 1, identity.MatchFuzzy
	}
	sim := normalize.StringSimilarity(a, b)
	if AtLeast(sim, m.cfg.FuzzyNameThreshold) {
		return sim, identity.MatchFuzzy
	}
	if sa := normalize.Soundex(a); sa != "" && sa == normalize.Soundex(b) {
		return sim, identity.MatchPhonetic
	}
	return 0, identity.MatchNone
}

func nameMatchType(score float64, last, first identity.MatchType) identity.MatchType {
	switch {
	case score <= 0:
		return identity.MatchNone
	case last == identity.MatchExact && first == identity.MatchExact:
		return identity.MatchExact
	case last == identity.MatchNone || first == identity.MatchNone:
		return identity.MatchPartial
	case last == identity.MatchPhonetic || first == identity.MatchPhonetic:
		return identity.MatchPhonetic
	default:
		return identity.MatchFuzzy
	}
}

func (m *Matcher) scorePhone(a, b identity.IdentityRecord) (identity.MatchDetail, bool) {
	pa, pb := normalize.RecordPhones(a), normalize.RecordPhones(b)
	if len(pa) == 0 || len(pb) == 0 {
		return identity.MatchDetail{}, false
	}

	d := identity.MatchDetail{
		Field:       identity.FieldPhone,
		SourceValue: pa[0],
		TargetValue: pb[0],
		MatchType:   identity.MatchNone,
		Weight:      m.cfg.Weights.Phone,
	}
	for _, x := range pa {
		for _, y := range pb {
			switch {
			case x == y:
				d.Score, d.MatchType, d.SourceValue, d.TargetValue = 1, identity.MatchExact, x, y
				return d, true
			case !m.cfg.PhoneExactMatch && d.Score < partialPhoneScore &&
				normalize.Subscriber(x) == normalize.Subscriber(y):
				d.Score, d.MatchType, d.SourceValue, d.TargetValue = partialPhoneScore, identity.MatchPartial, x, y
			}
		}
	}
	return d, true
}

func (m *Matcher) scoreEmail(a, b identity.IdentityRecord) (identity.MatchDetail, bool) {
	ea, eb := normalize.RecordEmails(a), normalize.RecordEmails(b)
	if len(ea) == 0 || len(eb) == 0 {
		return identity.MatchDetail{}, false
	}

	d := identity.MatchDetail{
		Field:       identity.FieldEmail,
		SourceValue: ea[0],
		TargetValue: eb[0],
		MatchType:   identity.MatchNone,
		Weight:      m.cfg.Weights.Email,
	}
	for _, x := range ea {
		for _, y := range eb {
			switch {
			case x == y:
				d.Score, d.MatchType, d.SourceValue, d.TargetValue = 1, identity.MatchExact, x, y
				return d, true
			case !m.cfg.EmailExactMatch && d.Score < mailboxEmailScore &&
				normalize.MailboxKey(x) == normalize.MailboxKey(y):
				d.Score, d.MatchType, d.SourceValue, d.TargetValue = mailboxEmailScore, identity.MatchPartial, x, y
			}
		}
	}
	return d, true
}

func (m *Matcher) scoreAddress(a, b identity.IdentityRecord) (identity.MatchDetail, bool) {
	aa, ab := normalize.RecordAddresses(a), normalize.RecordAddresses(b)
	if len(aa) == 0 || len(ab) == 0 {
		return identity.MatchDetail{}, false
	}

	d := identity.MatchDetail{
		Field:       identity.FieldAddress,
		SourceValue: aa[0].Key(),
		TargetValue: ab[0].Key(),
		MatchType:   identity.MatchNone,
		Weight:      m.cfg.Weights.Address,
	}
	for _, x := range aa {
		for _, y := range ab {
			c := addressComposite(x, y)
			if !AtLeast(c, m.cfg.AddressFuzzyThreshold) || c <= d.Score {
				continue
			}
			d.Score, d.SourceValue, d.TargetValue = c, x.Key(), y.Key()
			if AtLeast(c, 1) {
				d.MatchType = identity.MatchExact
			} else {
				d.MatchType = identity.MatchFuzzy
			}
		}
	}
	return d, true
}

func addressComposite(a, b normalize.NormalizedAddress) float64 {
	var c float64
	if a.Street != "" && b.Street != "" {
		c += streetShare * normalize.StringSimilarity(a.Street, b.Street)
	}
	if a.City != "" && b.City != "" {
		c += cityShare * normalize.StringSimilarity(a.City, b.City)
	}
	if a.State != "" && a.State == b.State {
		c += stateShare
	}
	if a.Zip != "" && a.Zip == b.Zip {
		c += zipShare
	}
	return clamp(c)
}

func displayName(n normalize.PersonName) string {
	if n.First == "" {
		return n.Last
	}
	return n.First + " " + n.Last
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
