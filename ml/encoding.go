package ml

import (
	"fmt"
	"sort"

	"crimetrend/pipeline"
)

// Feature column order inside every encoded vector.
const (
	FeatYear = iota
	FeatMonth
	FeatDistrict
	FeatCategory
	NumFeatures
)

// FeatureNames returns the predictor names in encoding order.
func FeatureNames() []string {
	return []string{"year", "month", "district", "category"}
}

// Encoder maps the four categorical predictors to stable integer codes.
// Level order is sorted (years/months numeric, districts/categories
// lexicographic) so the encoding does not depend on input row order.
type Encoder struct {
	years      []int
	months     []int
	districts  []string
	categories []string

	yearIdx     map[int]int
	monthIdx    map[int]int
	districtIdx map[string]int
	categoryIdx map[string]int
}

// NewEncoder builds level tables from the aggregated rows.
func NewEncoder(rows []pipeline.CountRow) (*Encoder, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to encode")
	}

	yearSet := make(map[int]bool)
	monthSet := make(map[int]bool)
	districtSet := make(map[string]bool)
	categorySet := make(map[string]bool)
	for _, row := range rows {
		yearSet[row.Year] = true
		monthSet[row.Month] = true
		districtSet[row.District] = true
		categorySet[row.Category] = true
	}

	e := &Encoder{
		years:       sortedInts(yearSet),
		months:      sortedInts(monthSet),
		districts:   sortedStrings(districtSet),
		categories:  sortedStrings(categorySet),
		yearIdx:     make(map[int]int),
		monthIdx:    make(map[int]int),
		districtIdx: make(map[string]int),
		categoryIdx: make(map[string]int),
	}
	for i, v := range e.years {
		e.yearIdx[v] = i
	}
	for i, v := range e.months {
		e.monthIdx[v] = i
	}
	for i, v := range e.districts {
		e.districtIdx[v] = i
	}
	for i, v := range e.categories {
		e.categoryIdx[v] = i
	}
	return e, nil
}

// Levels returns the level count per feature in encoding order.
func (e *Encoder) Levels() [NumFeatures]int {
	return [NumFeatures]int{
		len(e.years),
		len(e.months),
		len(e.districts),
		len(e.categories),
	}
}

// Categories returns the category levels in code order.
func (e *Encoder) Categories() []string {
	out := make([]string, len(e.categories))
	copy(out, e.categories)
	return out
}

// Districts returns the district levels in code order.
func (e *Encoder) Districts() []string {
	out := make([]string, len(e.districts))
	copy(out, e.districts)
	return out
}

// CodeVector encodes one group key into a 4-element predictor vector.
func (e *Encoder) CodeVector(key pipeline.GroupKey) ([]float64, error) {
	yi, ok := e.yearIdx[key.Year]
	if !ok {
		return nil, fmt.Errorf("unknown year %d", key.Year)
	}
	mi, ok := e.monthIdx[key.Month]
	if !ok {
		return nil, fmt.Errorf("unknown month %d", key.Month)
	}
	di, ok := e.districtIdx[key.District]
	if !ok {
		return nil, fmt.Errorf("unknown district %q", key.District)
	}
	ci, ok := e.categoryIdx[key.Category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", key.Category)
	}
	return []float64{float64(yi), float64(mi), float64(di), float64(ci)}, nil
}

// CodeMatrix encodes every row.
func (e *Encoder) CodeMatrix(rows []pipeline.CountRow) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		vec, err := e.CodeVector(row.GroupKey)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// BuildTrainingSet encodes the aggregated table into the design matrix and
// target vector shared by every model.
func BuildTrainingSet(rows []pipeline.CountRow) (*Encoder, [][]float64, []float64, error) {
	encoder, err := NewEncoder(rows)
	if err != nil {
		return nil, nil, nil, err
	}
	features, err := encoder.CodeMatrix(rows)
	if err != nil {
		return nil, nil, nil, err
	}
	targets := pipeline.Counts(rows)
	return encoder, features, targets, nil
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func sortedStrings(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
