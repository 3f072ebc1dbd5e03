package pipeline

import (
	"fmt"
	"sync"
	"time"

	"crimetrend/dataset"
)

// FilterRule 过滤规则
type FilterRule interface {
	Apply(*dataset.Incident) error
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Incident  string    `json:"incident"`
}

// FilterStats 过滤统计
type FilterStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastFilter     time.Time        `json:"last_filter"`
}

// IncidentFilter 报案记录过滤器
type IncidentFilter struct {
	rules []FilterRule

	stats     FilterStats
	statsLock sync.RWMutex
}

// NewIncidentFilter 创建过滤器并注册默认规则
func NewIncidentFilter(categories []string) *IncidentFilter {
	f := &IncidentFilter{
		rules: make([]FilterRule, 0),
		stats: FilterStats{
			Issues: make(map[string]int64),
		},
	}

	f.AddRule(NewCategoryRule(categories))
	f.AddRule(NewDistrictRule())
	f.AddRule(NewMonthRule())

	return f
}

// AddRule 添加过滤规则
func (f *IncidentFilter) AddRule(rule FilterRule) {
	f.rules = append(f.rules, rule)
}

// Filter 过滤记录，返回保留的行和被拒绝行的质量问题
func (f *IncidentFilter) Filter(incidents []dataset.Incident) ([]dataset.Incident, []QualityIssue) {
	var kept []dataset.Incident
	var issues []QualityIssue

	f.statsLock.Lock()
	defer f.statsLock.Unlock()

	for i := range incidents {
		incident := incidents[i]
		f.stats.TotalProcessed++

		var rejected bool
		for _, rule := range f.rules {
			if err := rule.Apply(&incident); err != nil {
				issues = append(issues, QualityIssue{
					Type:      rule.Name(),
					Message:   err.Error(),
					Timestamp: time.Now(),
					Incident:  incident.Number,
				})
				f.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
		}

		if rejected {
			f.stats.Rejected++
			continue
		}
		f.stats.Passed++
		kept = append(kept, incident)
	}

	f.stats.LastFilter = time.Now()

	return kept, issues
}

// GetStats 获取统计信息
func (f *IncidentFilter) GetStats() FilterStats {
	f.statsLock.RLock()
	defer f.statsLock.RUnlock()

	statsCopy := f.stats
	statsCopy.Issues = make(map[string]int64, len(f.stats.Issues))
	for k, v := range f.stats.Issues {
		statsCopy.Issues[k] = v
	}
	return statsCopy
}

// CategoryRule 类别保留清单规则
type CategoryRule struct {
	keep map[string]bool
}

// NewCategoryRule 创建类别规则
func NewCategoryRule(categories []string) *CategoryRule {
	keep := make(map[string]bool, len(categories))
	for _, c := range categories {
		keep[c] = true
	}
	return &CategoryRule{keep: keep}
}

// Name 规则名称
func (r *CategoryRule) Name() string {
	return "category_keep_list"
}

// Apply 检查类别是否在保留清单内
func (r *CategoryRule) Apply(incident *dataset.Incident) error {
	if !r.keep[incident.Category] {
		return fmt.Errorf("category %q not in keep list", incident.Category)
	}
	return nil
}

// DistrictRule 辖区非空规则
type DistrictRule struct{}

// NewDistrictRule 创建辖区规则
func NewDistrictRule() *DistrictRule {
	return &DistrictRule{}
}

// Name 规则名称
func (r *DistrictRule) Name() string {
	return "district_not_empty"
}

// Apply 丢弃辖区为空的行
func (r *DistrictRule) Apply(incident *dataset.Incident) error {
	if incident.District == "" {
		return fmt.Errorf("incident %s has empty district", incident.Number)
	}
	return nil
}

// MonthRule 月份合法性规则
type MonthRule struct{}

// NewMonthRule 创建月份规则
func NewMonthRule() *MonthRule {
	return &MonthRule{}
}

// Name 规则名称
func (r *MonthRule) Name() string {
	return "month_in_range"
}

// Apply 检查月份在1到12之间
func (r *MonthRule) Apply(incident *dataset.Incident) error {
	if incident.Month < 1 || incident.Month > 12 {
		return fmt.Errorf("month %d out of range", incident.Month)
	}
	return nil
}
