package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath    string `yaml:"db_path"`
	EnableWAL bool   `yaml:"enable_wal"`
}

// CountStore 月度计数的sqlite存储
type CountStore struct {
	config StorageConfig
	db     *sql.DB
	dbLock sync.RWMutex
}

// NewCountStore 创建计数存储
func NewCountStore(config StorageConfig) (*CountStore, error) {
	store := &CountStore{config: config}
	if err := store.initDB(); err != nil {
		return nil, err
	}
	return store, nil
}

// initDB 初始化数据库
func (cs *CountStore) initDB() error {
	dir := filepath.Dir(cs.config.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir failed: %w", err)
	}

	dsn := cs.config.DBPath
	if cs.config.EnableWAL {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	} else {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open database failed: %w", err)
	}
	cs.db = db

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := cs.createTables(); err != nil {
		return fmt.Errorf("create tables failed: %w", err)
	}
	return nil
}

// createTables 创建表
func (cs *CountStore) createTables() error {
	cs.dbLock.Lock()
	defer cs.dbLock.Unlock()

	_, err := cs.db.Exec(`
    CREATE TABLE IF NOT EXISTS monthly_counts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        year INTEGER NOT NULL,
        month INTEGER NOT NULL,
        district TEXT NOT NULL,
        category TEXT NOT NULL,
        count INTEGER NOT NULL,
        created_at INTEGER DEFAULT (strftime('%s', 'now')),
        UNIQUE(year, month, district, category)
    );
    CREATE INDEX IF NOT EXISTS idx_counts_category ON monthly_counts(category);
    CREATE INDEX IF NOT EXISTS idx_counts_district ON monthly_counts(district);
    `)
	return err
}

// SaveCounts 保存聚合结果，重复键覆盖
func (cs *CountStore) SaveCounts(ctx context.Context, rows []CountRow) error {
	if len(rows) == 0 {
		return nil
	}

	cs.dbLock.Lock()
	defer cs.dbLock.Unlock()

	tx, err := cs.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT OR REPLACE INTO monthly_counts (year, month, district, category, count)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Year, row.Month, row.District, row.Category, row.Count); err != nil {
			tx.Rollback()
			return fmt.Errorf("save count row failed: %w", err)
		}
	}

	return tx.Commit()
}

// LoadCounts 读取全部聚合结果，按分组键排序
func (cs *CountStore) LoadCounts(ctx context.Context) ([]CountRow, error) {
	cs.dbLock.RLock()
	defer cs.dbLock.RUnlock()

	rows, err := cs.db.QueryContext(ctx, `
        SELECT year, month, district, category, count
        FROM monthly_counts
        ORDER BY year, month, district, category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CountRow
	for rows.Next() {
		var row CountRow
		if err := rows.Scan(&row.Year, &row.Month, &row.District, &row.Category, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (cs *CountStore) Close() error {
	if cs.db == nil {
		return nil
	}
	return cs.db.Close()
}
