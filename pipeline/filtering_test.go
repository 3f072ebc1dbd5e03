package pipeline

import (
	"testing"

	"crimetrend/dataset"
)

func TestNewIncidentFilter(t *testing.T) {
	filter := NewIncidentFilter(dataset.KeepCategories())
	if filter == nil {
		t.Fatal("NewIncidentFilter returned nil")
	}

	if len(filter.rules) == 0 {
		t.Error("No default rules added")
	}
}

func TestCategoryRule(t *testing.T) {
	rule := NewCategoryRule([]string{"Larceny", "Vandalism"})

	tests := []struct {
		name     string
		incident *dataset.Incident
		wantErr  bool
	}{
		{
			name: "category on keep list",
			incident: &dataset.Incident{
				Category: "Larceny",
				District: "A1",
			},
			wantErr: false,
		},
		{
			name: "category not on keep list",
			incident: &dataset.Incident{
				Category: "Fraud",
				District: "A1",
			},
			wantErr: true,
		},
		{
			name: "empty category",
			incident: &dataset.Incident{
				Category: "",
				District: "A1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.Apply(tt.incident)
			if (err != nil) != tt.wantErr {
				t.Errorf("CategoryRule.Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDistrictRule(t *testing.T) {
	rule := NewDistrictRule()

	tests := []struct {
		name     string
		incident *dataset.Incident
		wantErr  bool
	}{
		{
			name:     "district present",
			incident: &dataset.Incident{Category: "Larceny", District: "B2"},
			wantErr:  false,
		},
		{
			name:     "district empty",
			incident: &dataset.Incident{Category: "Larceny", District: ""},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.Apply(tt.incident)
			if (err != nil) != tt.wantErr {
				t.Errorf("DistrictRule.Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMonthRule(t *testing.T) {
	rule := NewMonthRule()

	tests := []struct {
		name    string
		month   int
		wantErr bool
	}{
		{name: "january", month: 1, wantErr: false},
		{name: "december", month: 12, wantErr: false},
		{name: "zero", month: 0, wantErr: true},
		{name: "thirteen", month: 13, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			incident := &dataset.Incident{Category: "Larceny", District: "A1", Month: tt.month}
			err := rule.Apply(incident)
			if (err != nil) != tt.wantErr {
				t.Errorf("MonthRule.Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFilterStats(t *testing.T) {
	filter := NewIncidentFilter([]string{"Larceny"})

	incidents := []dataset.Incident{
		{Category: "Larceny", District: "A1", Year: 2016, Month: 3},
		{Category: "Larceny", District: "", Year: 2016, Month: 3},
		{Category: "Fraud", District: "A1", Year: 2016, Month: 3},
		{Category: "Larceny", District: "B2", Year: 2016, Month: 5},
	}

	kept, issues := filter.Filter(incidents)
	if len(kept) != 2 {
		t.Errorf("expected 2 kept incidents, got %d", len(kept))
	}
	if len(issues) != 2 {
		t.Errorf("expected 2 quality issues, got %d", len(issues))
	}

	stats := filter.GetStats()
	if stats.TotalProcessed != 4 {
		t.Errorf("TotalProcessed = %d, want 4", stats.TotalProcessed)
	}
	if stats.Passed != 2 {
		t.Errorf("Passed = %d, want 2", stats.Passed)
	}
	if stats.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", stats.Rejected)
	}
}

func TestFilterKeepsDistrictForEveryKeptIncident(t *testing.T) {
	filter := NewIncidentFilter(dataset.KeepCategories())

	incidents := []dataset.Incident{
		{Category: "Larceny", District: "A1", Year: 2017, Month: 1},
		{Category: "Vandalism", District: "", Year: 2017, Month: 1},
		{Category: "Towed", District: "C11", Year: 2017, Month: 2},
	}

	kept, _ := filter.Filter(incidents)
	for _, incident := range kept {
		if incident.District == "" {
			t.Errorf("kept incident with empty district: %+v", incident)
		}
	}
}
