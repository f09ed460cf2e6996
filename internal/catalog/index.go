package catalog

import (
	"context"
	"sort"
	"strings"

	"partsmatch/internal"
	"partsmatch/internal/footprint"
	"partsmatch/internal/matcher"
	"partsmatch/internal/storage"
	"partsmatch/internal/util"
	"partsmatch/internal/value"
)

// Index is an in-memory search over stored parts, used when matching runs
// offline or the remote catalog is unavailable.
type Index struct {
	parts  []internal.PartRecord
	byCode map[string][]int
	tokens map[string]map[int]struct{}
}

func BuildIndex(parts []internal.PartRecord) *Index {
	idx := &Index{
		parts:  parts,
		byCode: map[string][]int{},
		tokens: map[string]map[int]struct{}{},
	}

	for i, p := range parts {
		addCode := func(code *string) {
			if code == nil {
				return
			}
			norm := util.NormalizeCode(*code)
			if norm == "" {
				return
			}
			idx.byCode[norm] = append(idx.byCode[norm], i)
		}
		sku := p.SKU
		addCode(&sku)
		addCode(p.MPN)

		for _, token := range partTokens(p) {
			if _, ok := idx.tokens[token]; !ok {
				idx.tokens[token] = map[int]struct{}{}
			}
			idx.tokens[token][i] = struct{}{}
		}
	}

	return idx
}

func LoadIndex(db *storage.DB) (*Index, error) {
	parts, err := db.ListParts()
	if err != nil {
		return nil, err
	}
	return BuildIndex(parts), nil
}

func (idx *Index) Len() int {
	return len(idx.parts)
}

// Search returns exact SKU/MPN hits first, then parts ranked by how many
// query tokens they share. Equal counts are ordered by closeness to the
// query, then by storage order.
func (idx *Index) Search(query string, limit int) []internal.Record {
	if limit <= 0 {
		limit = MaxSearchResults
	}
	seen := map[int]struct{}{}
	var out []internal.Record
	add := func(i int) bool {
		if _, ok := seen[i]; ok {
			return len(out) < limit
		}
		seen[i] = struct{}{}
		out = append(out, idx.record(i))
		return len(out) < limit
	}

	for _, i := range idx.byCode[util.NormalizeCode(query)] {
		if !add(i) {
			return out
		}
	}

	hits := map[int]int{}
	for _, token := range queryTokens(query) {
		for i := range idx.tokens[token] {
			hits[i]++
		}
	}
	ranked := make([]int, 0, len(hits))
	closeness := make(map[int]float64, len(hits))
	for i := range hits {
		ranked = append(ranked, i)
		closeness[i] = idx.closeness(i, query)
	}
	sort.Slice(ranked, func(a, b int) bool {
		ia, ib := ranked[a], ranked[b]
		if hits[ia] != hits[ib] {
			return hits[ia] > hits[ib]
		}
		if closeness[ia] != closeness[ib] {
			return closeness[ia] > closeness[ib]
		}
		return ia < ib
	})
	for _, i := range ranked {
		if !add(i) {
			break
		}
	}
	return out
}

// closeness compares a code-like query with the MPN and anything else with
// the description.
func (idx *Index) closeness(i int, query string) float64 {
	p := idx.parts[i]
	if util.LooksLikeCode(query) {
		if p.MPN == nil {
			return 0
		}
		return util.DiceCoefficient(util.NormalizeCode(query), util.NormalizeCode(*p.MPN))
	}
	if p.Description == nil {
		return 0
	}
	return util.DiceCoefficient(util.NormalizeText(query), util.NormalizeText(*p.Description))
}

func (idx *Index) SearchFunc(limit int) matcher.SearchFunc {
	return func(ctx context.Context, query string) ([]internal.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return idx.Search(query, limit), nil
	}
}

func (idx *Index) record(i int) internal.Record {
	p := idx.parts[i]
	if len(p.Record) > 0 {
		return p.Record.Clone()
	}
	rec := internal.Record{"sku": p.SKU}
	set := func(key string, v *string) {
		if v != nil {
			rec[key] = *v
		}
	}
	set("mpn", p.MPN)
	set("manufacturer", p.Manufacturer)
	set("description", p.Description)
	set("value", p.Value)
	set("footprint", p.Footprint)
	return rec
}

func partTokens(p internal.PartRecord) []string {
	var text []string
	for _, s := range []*string{p.MPN, p.Manufacturer, p.Description, p.Value, p.Footprint} {
		if s != nil {
			text = append(text, *s)
		}
	}
	tokens := util.Tokenize(strings.Join(text, " "))
	if p.Value != nil {
		tokens = append(tokens, valueToken(*p.Value)...)
	}
	if p.Footprint != nil {
		fp := footprint.Parse(*p.Footprint)
		if fp.SizeImperial != "" {
			tokens = append(tokens, fp.SizeImperial)
		}
		if fp.Canonical != "" {
			tokens = append(tokens, strings.ToUpper(fp.Canonical))
		}
	}
	return tokens
}

func queryTokens(query string) []string {
	tokens := util.Tokenize(query)
	out := make([]string, 0, len(tokens))
	seen := map[string]struct{}{}
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range tokens {
		add(t)
	}
	// Case matters for value prefixes ("1m" vs "1M"), so values are read
	// from the raw query.
	for _, field := range strings.Fields(query) {
		for _, v := range valueToken(field) {
			add(v)
		}
	}
	return out
}

// valueToken spells a component value the way Format prints it so "4k7",
// "4.7k" and "4700" share a token.
func valueToken(s string) []string {
	p := value.Parse(s)
	if !p.HasNumeric() {
		return nil
	}
	return []string{"=" + strings.ToUpper(value.Format(*p.Numeric, ""))}
}
