// Package candidates models the tag candidate set produced by a generator.
//
// A set is either a flat list or a grouping of tags by category. Flatten
// resolves either form into a single ordered list.
package candidates

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"tagforge/internal/models"
)

// Well-known categories, in the order Flatten visits them.
const (
	CategoryPrimary    = "primary"
	CategoryTechnology = "technology"
	CategoryDomain     = "domain"
	CategoryFeature    = "feature"
)

var canonicalOrder = []string{CategoryPrimary, CategoryTechnology, CategoryDomain, CategoryFeature}

// Kind distinguishes the two forms of a Set.
type Kind int

const (
	KindFlat Kind = iota
	KindGrouped
)

func (k Kind) String() string {
	if k == KindGrouped {
		return "grouped"
	}
	return "flat"
}

// Set is a candidate tag set. The zero value is an empty flat set.
type Set struct {
	kind   Kind
	flat   []string
	groups map[string][]string
	// all is the generator's own combined list, when it supplied one.
	all []string
}

// Flat builds a set from a plain list of tags.
func Flat(tags []string) Set {
	return Set{kind: KindFlat, flat: append([]string{}, tags...)}
}

// Grouped builds a set from categorized tags. all may be nil.
func Grouped(groups map[string][]string, all []string) Set {
	g := make(map[string][]string, len(groups))
	for k, v := range groups {
		g[strings.ToLower(strings.TrimSpace(k))] = append([]string{}, v...)
	}
	return Set{kind: KindGrouped, groups: g, all: append([]string(nil), all...)}
}

// Kind reports which form the set has.
func (s Set) Kind() Kind { return s.kind }

// Groups returns a copy of the categories of a grouped set.
func (s Set) Groups() map[string][]string {
	out := make(map[string][]string, len(s.groups))
	for k, v := range s.groups {
		out[k] = append([]string{}, v...)
	}
	return out
}

// Categories lists the non-empty categories in canonical order followed by
// any others sorted by name.
func (s Set) Categories() []string {
	var out []string
	for _, c := range canonicalOrder {
		if len(s.groups[c]) > 0 {
			out = append(out, c)
		}
	}
	var extra []string
	for c, tags := range s.groups {
		if len(tags) > 0 && !isCanonical(c) {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Flatten returns the candidate tags as one list with case-insensitive
// duplicates and blanks removed. A grouped set that carries its own combined
// list returns that list; otherwise the categories are concatenated.
func (s Set) Flatten() []string {
	if s.kind == KindFlat {
		return unique(s.flat)
	}
	if len(unique(s.all)) > 0 {
		return unique(s.all)
	}
	var all []string
	for _, c := range s.Categories() {
		all = append(all, s.groups[c]...)
	}
	return unique(all)
}

// Empty reports whether Flatten would return nothing.
func (s Set) Empty() bool { return len(s.Flatten()) == 0 }

func isCanonical(c string) bool {
	for _, k := range canonicalOrder {
		if k == c {
			return true
		}
	}
	return false
}

func unique(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

type wireSet struct {
	Kind          string              `json:"kind"`
	Groups        map[string][]string `json:"groups,omitempty"`
	AllCandidates []string            `json:"all_candidates"`
}

// MarshalJSON reports the set together with its flattened form.
func (s Set) MarshalJSON() ([]byte, error) {
	w := wireSet{Kind: s.kind.String(), AllCandidates: s.Flatten()}
	if s.kind == KindGrouped {
		w.Groups = s.groups
	}
	return json.Marshal(w)
}

// Parse decodes a generator response. It accepts a JSON array of tags, an
// object with a "tags" array, or an object of category buckets such as
// {"primary_tags": [...], "technology_tags": [...], "all_candidates": [...]}.
// Non-string entries inside arrays are ignored.
func Parse(raw []byte) (Set, error) {
	body := strings.TrimSpace(StripCodeFence(string(raw)))
	if body == "" {
		return Set{}, fmt.Errorf("empty candidate response: %w", models.ErrParse)
	}

	var list []any
	if err := json.Unmarshal([]byte(body), &list); err == nil {
		return Flat(stringValues(list)), nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return Set{}, fmt.Errorf("decode candidate response: %v: %w", err, models.ErrParse)
	}

	if tags, ok := obj["tags"].([]any); ok && len(obj) == 1 {
		return Flat(stringValues(tags)), nil
	}

	groups := make(map[string][]string)
	var all []string
	for key, val := range obj {
		arr, ok := val.([]any)
		if !ok {
			continue
		}
		name := strings.ToLower(key)
		switch name {
		case "all_candidates", "all", "tags":
			all = stringValues(arr)
			continue
		}
		name = strings.TrimSuffix(name, "_tags")
		groups[name] = stringValues(arr)
	}
	if len(groups) == 0 && len(all) == 0 {
		return Set{}, fmt.Errorf("candidate response has no tag lists: %w", models.ErrParse)
	}
	if len(groups) == 0 {
		return Flat(all), nil
	}
	return Grouped(groups, all), nil
}

func stringValues(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// StripCodeFence removes a surrounding markdown code fence, which chat models
// often add around JSON.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
