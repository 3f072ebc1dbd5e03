package dataset

import (
	"sort"
	"time"
)

// Incident 单条报案记录
type Incident struct {
	Number     string    `json:"number"`
	Category   string    `json:"category"`
	District   string    `json:"district"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	OccurredOn time.Time `json:"occurred_on,omitempty"`
	Lat        float64   `json:"lat,omitempty"`
	Long       float64   `json:"long,omitempty"`
}

// keepCategories 按历史频数人工挑选的九个主要案件类别。
// 注意：这是固定清单，不是运行时的 top 9，数据集更新后可能偏离真实频数排序。
var keepCategories = []string{
	"Drug Violation",
	"Investigate Person",
	"Larceny",
	"Medical Assistance",
	"Motor Vehicle Accident Response",
	"Simple Assault",
	"Towed",
	"Vandalism",
	"Verbal Disputes",
}

// KeepCategories 返回固定的类别清单副本
func KeepCategories() []string {
	out := make([]string, len(keepCategories))
	copy(out, keepCategories)
	return out
}

// CategoryFrequencies 统计每个类别的记录数
func CategoryFrequencies(incidents []Incident) map[string]int {
	freq := make(map[string]int)
	for _, incident := range incidents {
		if incident.Category == "" {
			continue
		}
		freq[incident.Category]++
	}
	return freq
}

// TopCategories 按频数降序返回前n个类别，频数相同时按名称排序
func TopCategories(freq map[string]int, n int) []string {
	names := make([]string, 0, len(freq))
	for name := range freq {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if freq[names[i]] != freq[names[j]] {
			return freq[names[i]] > freq[names[j]]
		}
		return names[i] < names[j]
	})
	if n > len(names) {
		n = len(names)
	}
	return names[:n]
}
