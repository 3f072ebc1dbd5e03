package dataset

import (
	"reflect"
	"testing"
)

func TestKeepCategoriesIsCopy(t *testing.T) {
	first := KeepCategories()
	if len(first) != 9 {
		t.Fatalf("expected 9 keep categories, got %d", len(first))
	}

	first[0] = "mutated"
	second := KeepCategories()
	if second[0] == "mutated" {
		t.Error("KeepCategories exposes internal slice")
	}
}

func TestCategoryFrequencies(t *testing.T) {
	incidents := []Incident{
		{Category: "Larceny"},
		{Category: "Larceny"},
		{Category: "Towed"},
	}

	freq := CategoryFrequencies(incidents)
	if freq["Larceny"] != 2 || freq["Towed"] != 1 {
		t.Errorf("CategoryFrequencies() = %v", freq)
	}
}

func TestTopCategories(t *testing.T) {
	freq := map[string]int{
		"Larceny":   50,
		"Towed":     20,
		"Vandalism": 20,
		"Fraud":     5,
	}

	top := TopCategories(freq, 3)
	// Ties break on name so the result is stable.
	want := []string{"Larceny", "Towed", "Vandalism"}
	if !reflect.DeepEqual(top, want) {
		t.Errorf("TopCategories() = %v, want %v", top, want)
	}
}

func TestTopCategoriesFewerThanN(t *testing.T) {
	freq := map[string]int{"Larceny": 3}
	top := TopCategories(freq, 9)
	if len(top) != 1 {
		t.Errorf("TopCategories() = %v, want single entry", top)
	}
}
