package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"crimetrend/crossval"
	"crimetrend/db"
	"crimetrend/ml"
	"crimetrend/monitoring"
	"crimetrend/pipeline"

	lru "github.com/hashicorp/golang-lru/v2"
)

// AnalysisState 持有训练完成后的模型与数据，供API查询。
// 数据集监视器会在服务运行中重跑分析，读写都要拿锁。
type AnalysisState struct {
	mu         sync.RWMutex
	models     map[string]ml.RegressionModel
	encoder    *ml.Encoder
	rows       []pipeline.CountRow
	comparison *crossval.Comparison
	monitor    *monitoring.ProgressMonitor
	plotsDir   string
	cache      *lru.Cache[string, float64]
}

// NewAnalysisState 创建API状态容器
func NewAnalysisState(cacheSize int) (*AnalysisState, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction cache: %w", err)
	}
	return &AnalysisState{
		models: make(map[string]ml.RegressionModel),
		cache:  cache,
	}, nil
}

// SetData 设置聚合数据与编码器
func (s *AnalysisState) SetData(rows []pipeline.CountRow, encoder *ml.Encoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
	s.encoder = encoder
	s.cache.Purge()
}

// SetModel 注册一个训练好的模型
func (s *AnalysisState) SetModel(name string, model ml.RegressionModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[name] = model
}

// SetComparison 设置模型比较器
func (s *AnalysisState) SetComparison(c *crossval.Comparison) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparison = c
}

// SetMonitor 设置进度监控器
func (s *AnalysisState) SetMonitor(m *monitoring.ProgressMonitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor = m
}

// SetPlotsDir 设置图表输出目录
func (s *AnalysisState) SetPlotsDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plotsDir = dir
}

// RegisterHandlers 注册所有分析API路由
func RegisterHandlers(mux *http.ServeMux, state *AnalysisState) {
	mux.HandleFunc("GET /api/health", state.handleHealth)
	mux.HandleFunc("GET /api/models", state.handleModels)
	mux.HandleFunc("GET /api/results", state.handleResults)
	mux.HandleFunc("GET /api/metrics", state.handleMetrics)
	mux.HandleFunc("GET /api/progress", state.handleProgress)
	mux.HandleFunc("GET /api/counts", state.handleCounts)
	mux.HandleFunc("GET /api/predict/{model}", state.handlePredict)

	if state.plotsDir != "" {
		mux.Handle("GET /plots/", http.StripPrefix("/plots/", http.FileServer(http.Dir(state.plotsDir))))
	}
	if state.monitor != nil {
		mux.HandleFunc("/api/ws/progress", state.monitor.GetWebSocketHub().HandleWebSocket)
	}
}

func (s *AnalysisState) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	modelCount := len(s.models)
	rowCount := len(s.rows)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"models":    modelCount,
		"data_rows": rowCount,
		"timestamp": time.Now(),
	})
}

func (s *AnalysisState) handleModels(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"available": ml.ModelNames(),
		"trained":   names,
	})
}

func (s *AnalysisState) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	comparison := s.comparison
	s.mu.RUnlock()

	if comparison == nil {
		http.Error(w, `{"error":"no comparison has been run"}`, http.StatusServiceUnavailable)
		return
	}

	ranked := comparison.Ranked()
	if len(ranked) == 0 {
		http.Error(w, `{"error":"no results available"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results":   ranked,
		"count":     len(ranked),
		"timestamp": time.Now(),
	})
}

func (s *AnalysisState) handleMetrics(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	metrics, err := db.LoadMetrics(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"metrics": metrics,
		"count":   len(metrics),
	})
}

func (s *AnalysisState) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	comparison := s.comparison
	s.mu.RUnlock()

	if comparison == nil {
		http.Error(w, `{"error":"no comparison has been run"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"running":  comparison.IsRunning(),
		"progress": comparison.GetProgress(),
	})
}

func (s *AnalysisState) handleCounts(w http.ResponseWriter, r *http.Request) {
	district := r.URL.Query().Get("district")
	category := r.URL.Query().Get("category")

	s.mu.RLock()
	filtered := make([]pipeline.CountRow, 0, len(s.rows))
	for _, row := range s.rows {
		if district != "" && row.District != district {
			continue
		}
		if category != "" && row.Category != category {
			continue
		}
		filtered = append(filtered, row)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"counts": filtered,
		"count":  len(filtered),
	})
}

func (s *AnalysisState) handlePredict(w http.ResponseWriter, r *http.Request) {
	modelName := r.PathValue("model")
	s.mu.RLock()
	model, ok := s.models[modelName]
	encoder := s.encoder
	s.mu.RUnlock()
	if !ok {
		http.Error(w, `{"error":"unknown or untrained model"}`, http.StatusNotFound)
		return
	}
	if encoder == nil {
		http.Error(w, `{"error":"no data loaded"}`, http.StatusServiceUnavailable)
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		http.Error(w, `{"error":"year is required"}`, http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		http.Error(w, `{"error":"month must be 1-12"}`, http.StatusBadRequest)
		return
	}
	district := r.URL.Query().Get("district")
	category := r.URL.Query().Get("category")
	if district == "" || category == "" {
		http.Error(w, `{"error":"district and category are required"}`, http.StatusBadRequest)
		return
	}

	key := pipeline.GroupKey{Year: year, Month: month, District: district, Category: category}
	cacheKey := fmt.Sprintf("%s|%d|%d|%s|%s", modelName, year, month, district, category)

	predicted, cached := s.cache.Get(cacheKey)
	if !cached {
		features, err := encoder.CodeVector(key)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}
		predicted, err = model.Predict(features)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.cache.Add(cacheKey, predicted)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"model":     modelName,
		"year":      year,
		"month":     month,
		"district":  district,
		"category":  category,
		"predicted": predicted,
		"cached":    cached,
	})
}
