// Package rules applies deterministic lexical validation to tag lists.
package rules

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
)

// Elimination reasons.
const (
	ReasonLength        = "length"
	ReasonInvalidChars  = "invalid_chars"
	ReasonDuplicate     = "duplicate"
	ReasonGeneric       = "generic"
	ReasonSubjective    = "subjective"
	ReasonWhitespace    = "whitespace"
	ReasonBadHyphen     = "bad_hyphen"
	ReasonNearDuplicate = "near_duplicate"
	ReasonMaxTags       = "max_20"
)

const (
	DefaultMinLength = 3
	DefaultMaxLength = 30
	DefaultMaxTags   = 20
)

var (
	validChars = regexp.MustCompile(`^[a-z0-9\-]+$`)

	genericTags    = map[string]struct{}{"project": {}, "app": {}, "code": {}}
	subjectiveTags = map[string]struct{}{"awesome": {}, "cool": {}}
)

// Options overrides the default limits. Zero values fall back to defaults.
type Options struct {
	MinLength int `mapstructure:"min_length"`
	MaxLength int `mapstructure:"max_length"`
	MaxTags   int `mapstructure:"max_tags"`
}

func (o Options) withDefaults() Options {
	if o.MinLength <= 0 {
		o.MinLength = DefaultMinLength
	}
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	if o.MaxTags <= 0 {
		o.MaxTags = DefaultMaxTags
	}
	return o
}

// Result is the outcome of a filter pass.
type Result struct {
	ValidTags       []string             `json:"valid_tags"`
	Eliminated      []models.Elimination `json:"eliminated"`
	TotalInput      int                  `json:"total_input"`
	TotalEliminated int                  `json:"total_eliminated"`
	// Dropped counts inputs that were not strings.
	Dropped int `json:"dropped,omitempty"`
}

// Filter validates tags with the default options.
func Filter(tags []string) Result {
	return Options{}.Filter(tags)
}

// FilterValues is Filter for loosely typed input such as decoded JSON. Values
// that are not strings are skipped and counted in Result.Dropped.
func FilterValues(values []any) Result {
	return Options{}.FilterValues(values)
}

// FilterValues applies o to loosely typed input.
func (o Options) FilterValues(values []any) Result {
	tags := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			tags = append(tags, s)
		}
	}
	dropped := len(values) - len(tags)
	if dropped > 0 {
		log.Warnf("Skipped %d non-string tag values", dropped)
	}
	res := o.Filter(tags)
	res.TotalInput = len(values)
	res.Dropped = dropped
	return res
}

// Filter normalizes each tag (lowercase, spaces to hyphens), rejects the ones
// that break a rule, removes near-duplicates and caps the result.
func (o Options) Filter(tags []string) Result {
	o = o.withDefaults()
	res := Result{
		ValidTags:  []string{},
		Eliminated: []models.Elimination{},
		TotalInput: len(tags),
	}

	var accepted []string
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		norm := Normalize(tag)
		if reason := o.check(norm, seen); reason != "" {
			res.Eliminated = append(res.Eliminated, models.Elimination{Tag: tag, Reason: reason})
			continue
		}
		accepted = append(accepted, norm)
		seen[norm] = struct{}{}
	}

	var final []string
	for _, tag := range accepted {
		if nearDuplicateOf(tag, final) {
			res.Eliminated = append(res.Eliminated, models.Elimination{Tag: tag, Reason: ReasonNearDuplicate})
			continue
		}
		final = append(final, tag)
	}

	if len(final) > o.MaxTags {
		for _, tag := range final[o.MaxTags:] {
			res.Eliminated = append(res.Eliminated, models.Elimination{Tag: tag, Reason: ReasonMaxTags})
		}
		final = final[:o.MaxTags]
	}
	if final != nil {
		res.ValidTags = final
	}
	res.TotalEliminated = len(res.Eliminated)

	log.Debugf("Rule filter kept %d of %d tags", len(res.ValidTags), res.TotalInput)
	return res
}

// Normalize lowercases a tag and replaces spaces with hyphens.
func Normalize(tag string) string {
	return strings.ReplaceAll(strings.ToLower(tag), " ", "-")
}

// check returns the first rule a normalized tag breaks, or "".
func (o Options) check(tag string, seen map[string]struct{}) string {
	if n := len([]rune(tag)); n < o.MinLength || n > o.MaxLength {
		return ReasonLength
	}
	if !validChars.MatchString(tag) {
		return ReasonInvalidChars
	}
	if _, ok := seen[tag]; ok {
		return ReasonDuplicate
	}
	if _, ok := genericTags[tag]; ok {
		return ReasonGeneric
	}
	if _, ok := subjectiveTags[tag]; ok {
		return ReasonSubjective
	}
	if strings.TrimSpace(tag) != tag {
		return ReasonWhitespace
	}
	if strings.Contains(tag, "--") || strings.HasPrefix(tag, "-") || strings.HasSuffix(tag, "-") {
		return ReasonBadHyphen
	}
	return ""
}

// nearDuplicateOf reports whether tag is within distance 2 of any kept tag.
//
// The distance counts mismatched characters at equal positions plus the length
// difference. It approximates edit distance and undercounts shifted
// insertions: "abcd" and "xabcd" score 5, not 1.
func nearDuplicateOf(tag string, kept []string) bool {
	for _, other := range kept {
		if tag == other {
			continue
		}
		if alignedDistance(tag, other) <= 2 {
			return true
		}
	}
	return false
}

func alignedDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	if diff > 2 {
		return diff
	}
	shorter := len(ra)
	if len(rb) < shorter {
		shorter = len(rb)
	}
	d := diff
	for i := 0; i < shorter; i++ {
		if ra[i] != rb[i] {
			d++
		}
	}
	return d
}
