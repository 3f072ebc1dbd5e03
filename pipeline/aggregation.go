package pipeline

import (
	"sort"

	"crimetrend/dataset"
)

// GroupKey 聚合分组键
type GroupKey struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	District string `json:"district"`
	Category string `json:"category"`
}

// CountRow 每个分组一行的月度计数
type CountRow struct {
	GroupKey
	Count int `json:"count"`
}

// Aggregate 按(年,月,辖区,类别)分组计数。
// 输出只包含实际出现的组合，不补零；排序与输入行序无关。
func Aggregate(incidents []dataset.Incident) []CountRow {
	counts := make(map[GroupKey]int, len(incidents)/4)
	for _, incident := range incidents {
		key := GroupKey{
			Year:     incident.Year,
			Month:    incident.Month,
			District: incident.District,
			Category: incident.Category,
		}
		counts[key]++
	}

	rows := make([]CountRow, 0, len(counts))
	for key, count := range counts {
		rows = append(rows, CountRow{GroupKey: key, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.District != b.District {
			return a.District < b.District
		}
		return a.Category < b.Category
	})
	return rows
}

// Counts 返回每行的计数列
func Counts(rows []CountRow) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = float64(row.Count)
	}
	return out
}
