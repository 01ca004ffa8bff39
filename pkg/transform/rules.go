package transform

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Unknown is the sentinel written for categorical values that match no
// canonical code. Standardized columns are never null and never keep an
// unmatched raw code.
const Unknown = "n/a"

// OpenEndDate is the sentinel end date carried by the latest version of a
// slowly-changing dimension.
var OpenEndDate = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// CleanCode strips control characters (tab, carriage return, line feed)
// and surrounding whitespace from a raw categorical code.
func CleanCode(raw string) string {
	cleaned := strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(raw)

	return strings.TrimSpace(cleaned)
}

// CodeMap standardizes a small fixed set of raw codes to canonical
// labels. Matching is exact and case-insensitive after CleanCode.
type CodeMap struct {
	mapping map[string]string

	// passThrough keeps the cleaned raw value on a miss instead of
	// falling back to the Unknown sentinel.
	passThrough bool
}

// NewCodeMap builds a CodeMap with the Unknown fallback.
func NewCodeMap(mapping map[string]string) CodeMap {
	normalized := make(map[string]string, len(mapping))
	for code, label := range mapping {
		normalized[strings.ToUpper(code)] = label
	}

	return CodeMap{mapping: normalized}
}

// NewPassThroughCodeMap builds a CodeMap that keeps unmatched values
// as-is. Used only for the product category maintenance flag, whose
// unmatched values are effectively free text.
func NewPassThroughCodeMap(mapping map[string]string) CodeMap {
	cm := NewCodeMap(mapping)
	cm.passThrough = true

	return cm
}

// Standardize maps a raw code to its canonical label.
func (m CodeMap) Standardize(raw string) string {
	cleaned := CleanCode(raw)

	if label, ok := m.mapping[strings.ToUpper(cleaned)]; ok {
		return label
	}

	if m.passThrough {
		return cleaned
	}

	return Unknown
}

// Canonical returns the full canonical label set, including the fallback
// sentinel for non-pass-through maps. The quality gate checks membership
// against this set.
func (m CodeMap) Canonical() []string {
	seen := make(map[string]struct{}, len(m.mapping)+1)
	labels := make([]string, 0, len(m.mapping)+1)

	for _, label := range m.mapping {
		if _, ok := seen[label]; ok {
			continue
		}

		seen[label] = struct{}{}

		labels = append(labels, label)
	}

	if !m.passThrough {
		labels = append(labels, Unknown)
	}

	sort.Strings(labels)

	return labels
}

// DedupeByKey partitions rows by business key, orders each partition by
// recency descending and keeps exactly one row per key. Rows whose key
// function reports no key are dropped. The sort is stable and compares
// only recency, so for equal recency the later input row wins - that is
// the deterministic tie-break.
func DedupeByKey[T any](
	rows []T,
	key func(T) (int64, bool),
	recency func(T) time.Time,
) []T {
	type keyed struct {
		row T
		pos int
	}

	partitions := make(map[int64][]keyed, len(rows))
	order := make([]int64, 0, len(rows))

	for i, row := range rows {
		k, ok := key(row)
		if !ok {
			continue
		}

		if _, seen := partitions[k]; !seen {
			order = append(order, k)
		}

		partitions[k] = append(partitions[k], keyed{row: row, pos: i})
	}

	kept := make([]T, 0, len(order))

	for _, k := range order {
		part := partitions[k]

		sort.SliceStable(part, func(i, j int) bool {
			ri, rj := recency(part[i].row), recency(part[j].row)
			if ri.Equal(rj) {
				// Later input row first.
				return part[i].pos > part[j].pos
			}

			return ri.After(rj)
		})

		kept = append(kept, part[0].row)
	}

	return kept
}

// ChainSCD2 orders the version start dates ascending and returns the end
// date for each version: start of the next version minus one day, with
// the open sentinel for the last version. The input slice is not
// modified; ends is keyed by position in the returned sorted order.
func ChainSCD2(starts []time.Time) (sorted []time.Time, ends []time.Time) {
	sorted = make([]time.Time, len(starts))
	copy(sorted, starts)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Before(sorted[j])
	})

	ends = make([]time.Time, len(sorted))

	for i := range sorted {
		if i == len(sorted)-1 {
			ends[i] = OpenEndDate

			continue
		}

		ends[i] = sorted[i+1].AddDate(0, 0, -1)
	}

	return sorted, ends
}

// CoerceDate8 converts an 8-character yyyymmdd text date to a typed
// date. Anything that is not exactly eight digits forming a valid date
// becomes nil - never an error.
func CoerceDate8(raw string) *time.Time {
	cleaned := strings.TrimSpace(raw)
	if len(cleaned) != 8 {
		return nil
	}

	t, err := time.Parse("20060102", cleaned)
	if err != nil {
		return nil
	}

	t = t.UTC()

	return &t
}

// CoerceISODate converts a yyyy-mm-dd text date to a typed date, nil on
// any mismatch.
func CoerceISODate(raw string) *time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return nil
	}

	t = t.UTC()

	return &t
}

// ParseKey parses a numeric business key. Keys that do not parse are
// treated as absent, which drops the row in deduplication.
func ParseKey(raw string) (int64, bool) {
	k, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}

	return k, true
}

// ParseFloat parses an optional numeric column, nil when empty or
// malformed.
func ParseFloat(raw string) *float64 {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}

	return &f
}

// SplitProductKey derives the category id and the remainder product code
// from a composite product key: the first five characters with dashes
// folded to underscores form the category id, the rest is the product
// code.
func SplitProductKey(key string) (categoryID, productCode string) {
	key = strings.TrimSpace(key)
	if len(key) <= 5 {
		return strings.ReplaceAll(key, "-", "_"), ""
	}

	categoryID = strings.ReplaceAll(key[:5], "-", "_")
	productCode = key[6:]

	// Keys without the separator after the category part keep the full
	// remainder.
	if key[5] != '-' {
		productCode = key[5:]
	}

	return categoryID, productCode
}

// RepairSales applies the numeric consistency repair: the amount is
// recomputed as quantity x |price| whenever it is null, non-positive or
// inconsistent with that product; the price is recomputed as amount /
// quantity whenever it is null or non-positive, with zero quantity
// yielding no derivable price. Applying the repair to already-consistent
// values is a no-op.
func RepairSales(
	sales, price *float64, quantity int64,
) (repairedSales, repairedPrice *float64) {
	repairedSales = sales
	repairedPrice = price

	if price != nil {
		expected := float64(quantity) * math.Abs(*price)

		if sales == nil || *sales <= 0 || *sales != expected {
			repairedSales = &expected
		}
	}

	if price == nil || *price <= 0 {
		if repairedSales != nil && quantity != 0 {
			derived := *repairedSales / float64(quantity)
			repairedPrice = &derived
		} else {
			repairedPrice = nil
		}
	}

	return repairedSales, repairedPrice
}
