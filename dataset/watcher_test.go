package dataset

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func incidentsCSV(counts map[string]int) string {
	var b strings.Builder
	b.WriteString("OFFENSE_CODE_GROUP,DISTRICT,YEAR,MONTH\n")
	for category, n := range counts {
		for i := 0; i < n; i++ {
			b.WriteString(category + ",A1,2016,8\n")
		}
	}
	return b.String()
}

func TestWatcherReportsCategoryDrift(t *testing.T) {
	// 数据集里占优的类别不在固定清单上，重载后应触发偏离回调
	path := writeCSV(t, incidentsCSV(map[string]int{
		"Fraud":   20,
		"Larceny": 3,
	}))

	var reloaded []Incident
	w := NewWatcher(path, zap.NewNop().Sugar(), func(incidents []Incident) {
		reloaded = incidents
	})

	var gotKeep, gotLive []string
	w.SetDriftHandler(func(keep, live []string) {
		gotKeep = keep
		gotLive = live
	})

	w.checkOnce()

	if len(reloaded) != 23 {
		t.Errorf("reloaded %d incidents, want 23", len(reloaded))
	}
	if gotLive == nil {
		t.Fatal("drift handler not invoked")
	}
	if len(gotKeep) != len(keepCategories) {
		t.Errorf("keep list has %d entries, want %d", len(gotKeep), len(keepCategories))
	}
	if gotLive[0] != "Fraud" {
		t.Errorf("top live category = %q, want Fraud", gotLive[0])
	}
}

func TestWatcherNoDriftForKeepListCategories(t *testing.T) {
	counts := make(map[string]int, len(keepCategories))
	for i, category := range keepCategories {
		counts[category] = 10 + i
	}
	path := writeCSV(t, incidentsCSV(counts))

	w := NewWatcher(path, zap.NewNop().Sugar(), nil)

	drifted := false
	w.SetDriftHandler(func(keep, live []string) {
		drifted = true
	})

	w.checkOnce()

	if drifted {
		t.Error("drift handler fired for a dataset matching the keep list")
	}
}
