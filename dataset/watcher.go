package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监视数据集文件变化。
// 类别清单是写死的，数据集更新后真实的top 9可能和清单不一致，
// 这里在文件变化时重新统计频数并对偏离发出告警，不做自动修正。
type Watcher struct {
	path     string
	logger   *zap.SugaredLogger
	debounce time.Duration
	onReload func([]Incident)
	onDrift  func(keep, live []string)
}

// NewWatcher 创建数据集监视器
func NewWatcher(path string, logger *zap.SugaredLogger, onReload func([]Incident)) *Watcher {
	return &Watcher{
		path:     path,
		logger:   logger,
		debounce: 2 * time.Second,
		onReload: onReload,
	}
}

// SetDriftHandler 注册类别偏离回调，keep是写死的清单，live是重新统计出的top类别
func (w *Watcher) SetDriftHandler(fn func(keep, live []string)) {
	w.onDrift = fn
}

// Run 阻塞运行，直到ctx取消
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}
	defer notifier.Close()

	// 监视目录而不是文件本身，很多工具用rename替换文件
	if err := notifier.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s failed: %w", w.path, err)
	}
	w.logger.Infow("watching dataset", "path", w.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("watcher error", "error", err)
		case <-fire:
			w.checkOnce()
		}
	}
}

// checkOnce 重新加载数据集并核对类别清单
func (w *Watcher) checkOnce() {
	incidents, err := LoadIncidents(w.path)
	if err != nil {
		w.logger.Errorw("reload dataset failed", "path", w.path, "error", err)
		return
	}
	w.logger.Infow("dataset reloaded", "rows", len(incidents))

	freq := CategoryFrequencies(incidents)
	live := TopCategories(freq, len(keepCategories))
	if missing := diffCategories(keepCategories, live); len(missing) > 0 {
		w.logger.Warnw("hard-coded category list diverged from live top categories",
			"keep_list_only", missing,
			"live_top", live)
		if w.onDrift != nil {
			w.onDrift(KeepCategories(), live)
		}
	}

	if w.onReload != nil {
		w.onReload(incidents)
	}
}

// diffCategories 返回keep有而live没有的类别，排序后输出
func diffCategories(keep, live []string) []string {
	liveSet := make(map[string]bool, len(live))
	for _, name := range live {
		liveSet[name] = true
	}
	var missing []string
	for _, name := range keep {
		if !liveSet[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
