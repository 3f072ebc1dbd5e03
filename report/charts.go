package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"crimetrend/crossval"
	"crimetrend/pipeline"
)

// categoryPalette 类别配色，超出时循环使用
var categoryPalette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 127, G: 127, B: 127, A: 255},
	{R: 188, G: 189, B: 34, A: 255},
}

// CategoryColor 返回某个类别下标的颜色
func CategoryColor(idx int) color.RGBA {
	return categoryPalette[idx%len(categoryPalette)]
}

// RenderPredictedVsActual 画预测值对实际值散点图，按类别着色，
// 标题标注交叉验证的RMSE和R方。
func RenderPredictedVsActual(path string, rows []pipeline.CountRow, predicted []float64, modelName string, rmse, r2 float64) error {
	if len(rows) != len(predicted) {
		return fmt.Errorf("rows and predictions size mismatch: %d vs %d", len(rows), len(predicted))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: predicted vs actual (CV RMSE=%.2f, R2=%.3f)", modelName, rmse, r2)
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "Actual monthly count"
	p.Y.Label.Text = "Predicted monthly count"

	// 按类别分组
	byCategory := make(map[string]plotter.XYs)
	order := make([]string, 0)
	maxValue := 0.0
	for i, row := range rows {
		if _, ok := byCategory[row.Category]; !ok {
			order = append(order, row.Category)
		}
		byCategory[row.Category] = append(byCategory[row.Category], plotter.XY{
			X: float64(row.Count),
			Y: predicted[i],
		})
		maxValue = math.Max(maxValue, math.Max(float64(row.Count), predicted[i]))
	}

	for i, category := range order {
		scatter, err := plotter.NewScatter(byCategory[category])
		if err != nil {
			return fmt.Errorf("scatter for %s failed: %w", category, err)
		}
		scatter.GlyphStyle.Color = CategoryColor(i)
		scatter.GlyphStyle.Radius = vg.Points(2)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(scatter)
		p.Legend.Add(category, scatter)
	}

	identity, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: maxValue, Y: maxValue}})
	if err != nil {
		return err
	}
	identity.LineStyle.Color = color.RGBA{R: 80, G: 80, B: 80, A: 255}
	identity.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(identity)

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Font.Size = vg.Points(8)

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

// RenderResiduals 画残差对预测值散点图
func RenderResiduals(path string, rows []pipeline.CountRow, predicted []float64, modelName string) error {
	if len(rows) != len(predicted) {
		return fmt.Errorf("rows and predictions size mismatch: %d vs %d", len(rows), len(predicted))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: residuals", modelName)
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "Predicted monthly count"
	p.Y.Label.Text = "Residual (actual - predicted)"

	points := make(plotter.XYs, len(rows))
	maxPredicted := 0.0
	for i, row := range rows {
		points[i].X = predicted[i]
		points[i].Y = float64(row.Count) - predicted[i]
		maxPredicted = math.Max(maxPredicted, predicted[i])
	}

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Color = categoryPalette[0]
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(scatter)

	zero, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: maxPredicted, Y: 0}})
	if err != nil {
		return err
	}
	zero.LineStyle.Color = color.RGBA{R: 80, G: 80, B: 80, A: 255}
	zero.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(zero)

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

// RenderRMSEComparison 画各模型交叉验证RMSE的柱状对比图
func RenderRMSEComparison(path string, results []*crossval.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to plot")
	}

	p := plot.New()
	p.Title.Text = "Cross-validated RMSE by model"
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.Y.Label.Text = "Mean RMSE (10-fold x 5 repeats)"

	values := make(plotter.Values, len(results))
	names := make([]string, len(results))
	for i, result := range results {
		values[i] = result.MeanRMSE
		names[i] = result.ModelName
	}

	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return err
	}
	bars.Color = categoryPalette[0]
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.YAlign = draw.YCenter
	p.X.Tick.Label.XAlign = draw.XRight
	p.Y.Min = 0

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
