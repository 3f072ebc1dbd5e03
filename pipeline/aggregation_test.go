package pipeline

import (
	"math/rand"
	"reflect"
	"testing"

	"crimetrend/dataset"
)

func TestAggregateCountsPerGroup(t *testing.T) {
	incidents := []dataset.Incident{
		{Category: "Larceny", District: "A1", Year: 2016, Month: 3},
		{Category: "Larceny", District: "A1", Year: 2016, Month: 3},
		{Category: "Vandalism", District: "A1", Year: 2016, Month: 3},
	}

	rows := Aggregate(incidents)
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(rows))
	}

	want := []CountRow{
		{GroupKey: GroupKey{Year: 2016, Month: 3, District: "A1", Category: "Larceny"}, Count: 2},
		{GroupKey: GroupKey{Year: 2016, Month: 3, District: "A1", Category: "Vandalism"}, Count: 1},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("Aggregate() = %+v, want %+v", rows, want)
	}
}

func TestAggregateOrderInvariant(t *testing.T) {
	incidents := []dataset.Incident{
		{Category: "Larceny", District: "A1", Year: 2016, Month: 3},
		{Category: "Towed", District: "B2", Year: 2016, Month: 1},
		{Category: "Larceny", District: "A1", Year: 2016, Month: 3},
		{Category: "Vandalism", District: "C11", Year: 2017, Month: 12},
		{Category: "Towed", District: "B2", Year: 2016, Month: 1},
		{Category: "Larceny", District: "B2", Year: 2016, Month: 3},
	}

	rows := Aggregate(incidents)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]dataset.Incident, len(incidents))
		copy(shuffled, incidents)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := Aggregate(shuffled)
		if !reflect.DeepEqual(got, rows) {
			t.Fatalf("aggregation depends on input order: %+v vs %+v", got, rows)
		}
	}
}

func TestAggregateSortedOutput(t *testing.T) {
	incidents := []dataset.Incident{
		{Category: "Vandalism", District: "C11", Year: 2017, Month: 1},
		{Category: "Larceny", District: "A1", Year: 2016, Month: 12},
		{Category: "Larceny", District: "A1", Year: 2016, Month: 2},
		{Category: "Towed", District: "A1", Year: 2016, Month: 2},
	}

	rows := Aggregate(incidents)
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.Year > cur.Year {
			t.Fatalf("rows not sorted by year at %d: %+v", i, rows)
		}
		if prev.Year == cur.Year && prev.Month > cur.Month {
			t.Fatalf("rows not sorted by month at %d: %+v", i, rows)
		}
	}
}

func TestAggregateTotalPreserved(t *testing.T) {
	incidents := []dataset.Incident{
		{Category: "Larceny", District: "A1", Year: 2016, Month: 3},
		{Category: "Larceny", District: "A1", Year: 2016, Month: 4},
		{Category: "Towed", District: "B2", Year: 2016, Month: 4},
		{Category: "Towed", District: "B2", Year: 2016, Month: 4},
		{Category: "Towed", District: "B2", Year: 2017, Month: 4},
	}

	rows := Aggregate(incidents)
	total := 0
	for _, row := range rows {
		total += row.Count
	}
	if total != len(incidents) {
		t.Errorf("total count = %d, want %d", total, len(incidents))
	}
}

func TestCounts(t *testing.T) {
	rows := []CountRow{
		{GroupKey: GroupKey{Year: 2016, Month: 1, District: "A1", Category: "Larceny"}, Count: 3},
		{GroupKey: GroupKey{Year: 2016, Month: 2, District: "A1", Category: "Larceny"}, Count: 7},
	}

	counts := Counts(rows)
	want := []float64{3, 7}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("Counts() = %v, want %v", counts, want)
	}
}
