package db

import (
	"database/sql"
	"errors"
	"time"

	"crimetrend/crossval"
	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS model_metrics (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        mean_rmse REAL NOT NULL,
        mean_r_squared REAL NOT NULL,
        folds INTEGER NOT NULL,
        repeats INTEGER NOT NULL,
        data_rows INTEGER NOT NULL,
        rank INTEGER,
        duration_ms INTEGER,
        evaluated_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS fold_scores (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        repeat INTEGER NOT NULL,
        fold INTEGER NOT NULL,
        rmse REAL NOT NULL,
        r_squared REAL NOT NULL,
        evaluated_at DATETIME NOT NULL,
        UNIQUE(model_name, repeat, fold, evaluated_at)
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        year INTEGER NOT NULL,
        month INTEGER NOT NULL,
        district TEXT NOT NULL,
        category TEXT NOT NULL,
        predicted REAL NOT NULL,
        actual INTEGER,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(model_name, year, month, district, category)
    );
    `

	_, err = database.Exec(query)
	return err
}

// CloseDB closes the database handle
func CloseDB() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// MetricsLog 一次评估的汇总指标
type MetricsLog struct {
	ModelName    string    `json:"model_name"`
	MeanRMSE     float64   `json:"mean_rmse"`
	MeanRSquared float64   `json:"mean_r_squared"`
	Folds        int       `json:"folds"`
	Repeats      int       `json:"repeats"`
	DataRows     int       `json:"data_rows"`
	Rank         int       `json:"rank"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// SaveResult 保存一个模型的交叉验证结果，含每折成绩
func SaveResult(result *crossval.Result, folds, repeats int) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if result == nil {
		return errors.New("result is nil")
	}

	tx, err := database.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        INSERT INTO model_metrics (model_name, mean_rmse, mean_r_squared, folds, repeats, data_rows, rank, duration_ms, evaluated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ModelName, result.MeanRMSE, result.MeanRSquared, folds, repeats,
		result.Rows, result.Rank, result.Duration.Milliseconds(), result.Timestamp.UTC())
	if err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT OR REPLACE INTO fold_scores (model_name, repeat, fold, rmse, r_squared, evaluated_at)
        VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, score := range result.Scores {
		if _, err := stmt.Exec(result.ModelName, score.Repeat, score.Fold, score.RMSE, score.RSquared, result.Timestamp.UTC()); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LoadMetrics 读取最近的评估指标，按评估时间降序
func LoadMetrics(limit int) ([]MetricsLog, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := database.Query(`
        SELECT model_name, mean_rmse, mean_r_squared, folds, repeats, data_rows, rank, evaluated_at
        FROM model_metrics
        ORDER BY evaluated_at DESC, rank ASC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]MetricsLog, 0)
	for rows.Next() {
		var entry MetricsLog
		if err := rows.Scan(&entry.ModelName, &entry.MeanRMSE, &entry.MeanRSquared,
			&entry.Folds, &entry.Repeats, &entry.DataRows, &entry.Rank, &entry.EvaluatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// SavePredictions 保存模型在聚合表上的拟合值
func SavePredictions(modelName string, years, months []int, districts, categories []string, predicted []float64, actual []int) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	n := len(predicted)
	if len(years) != n || len(months) != n || len(districts) != n || len(categories) != n || len(actual) != n {
		return errors.New("prediction column length mismatch")
	}
	if n == 0 {
		return nil
	}

	stmt, err := database.Prepare(`
        INSERT OR REPLACE INTO predictions (model_name, year, month, district, category, predicted, actual)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(modelName, years[i], months[i], districts[i], categories[i], predicted[i], actual[i]); err != nil {
			return err
		}
	}
	return nil
}
