package dataset

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// 原始CSV里用到的列名
const (
	colNumber   = "INCIDENT_NUMBER"
	colCategory = "OFFENSE_CODE_GROUP"
	colDistrict = "DISTRICT"
	colYear     = "YEAR"
	colMonth    = "MONTH"
	colOccurred = "OCCURRED_ON_DATE"
	colLat      = "Lat"
	colLong     = "Long"
)

const occurredLayout = "2006-01-02 15:04:05"

// LoadIncidents 从CSV文件加载报案记录。
// 市政导出的文件是Latin-1编码，先解码再交给dataframe解析。
func LoadIncidents(path string) ([]Incident, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset failed: %w", err)
	}
	defer file.Close()

	decoded := transform.NewReader(file, charmap.ISO8859_1.NewDecoder())
	df := dataframe.ReadCSV(decoded,
		dataframe.HasHeader(true),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(map[string]series.Type{
			colYear:  series.Int,
			colMonth: series.Int,
			colLat:   series.Float,
			colLong:  series.Float,
		}),
	)
	if df.Error() != nil {
		return nil, fmt.Errorf("parse dataset failed: %w", df.Error())
	}

	names := df.Names()
	for _, required := range []string{colCategory, colDistrict, colYear, colMonth} {
		if !hasColumn(names, required) {
			return nil, fmt.Errorf("dataset missing column %s", required)
		}
	}

	categories := df.Col(colCategory)
	districts := df.Col(colDistrict)
	years := df.Col(colYear)
	months := df.Col(colMonth)

	hasNumber := hasColumn(names, colNumber)
	hasOccurred := hasColumn(names, colOccurred)
	hasLat := hasColumn(names, colLat)
	hasLong := hasColumn(names, colLong)
	var numbers, occurred, lats, longs series.Series
	if hasNumber {
		numbers = df.Col(colNumber)
	}
	if hasOccurred {
		occurred = df.Col(colOccurred)
	}
	if hasLat {
		lats = df.Col(colLat)
	}
	if hasLong {
		longs = df.Col(colLong)
	}

	incidents := make([]Incident, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		year, err := years.Elem(i).Int()
		if err != nil {
			continue
		}
		month, err := months.Elem(i).Int()
		if err != nil {
			continue
		}
		incident := Incident{
			Category: categories.Elem(i).String(),
			District: districts.Elem(i).String(),
			Year:     year,
			Month:    month,
		}
		// gota把缺失的字符串渲染成"NaN"，原始导出里也有字面量"NA"
		if districts.Elem(i).IsNA() || incident.District == "NA" || incident.District == "NaN" {
			incident.District = ""
		}
		if hasNumber {
			incident.Number = numbers.Elem(i).String()
		}
		if hasOccurred {
			if ts, err := time.Parse(occurredLayout, occurred.Elem(i).String()); err == nil {
				incident.OccurredOn = ts
			}
		}
		if hasLat {
			if v := lats.Elem(i).Float(); !math.IsNaN(v) {
				incident.Lat = v
			}
		}
		if hasLong {
			if v := longs.Elem(i).Float(); !math.IsNaN(v) {
				incident.Long = v
			}
		}
		incidents = append(incidents, incident)
	}

	if len(incidents) == 0 {
		return nil, fmt.Errorf("dataset %s contains no usable rows", path)
	}
	return incidents, nil
}

func hasColumn(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
