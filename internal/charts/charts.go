// Package charts renders study analytics as standalone HTML pages.
package charts

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/conorfennell/flipstack/internal/analytics"
)

// Config holds presentation options shared by all charts.
type Config struct {
	Title    string
	Subtitle string
	Width    string
	Height   string
	Theme    string
}

// DefaultConfig returns default chart configuration.
func DefaultConfig() Config {
	return Config{
		Width:  "900px",
		Height: "300px",
		Theme:  "light",
	}
}

// levelColors index matches levelRank.
var levelColors = []string{"#ebedf0", "#9be9a8", "#40c463", "#30a14e", "#216e39"}

var levelRank = map[analytics.Level]int{
	analytics.LevelNone:   0,
	analytics.LevelLight:  1,
	analytics.LevelNormal: 2,
	analytics.LevelHeavy:  3,
	analytics.LevelHeroic: 4,
}

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func globalOpts(cfg Config) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Width:  cfg.Width,
			Height: cfg.Height,
			Theme:  cfg.Theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    cfg.Title,
			Subtitle: cfg.Subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	}
}

// Heatmap renders a year of review activity as a week-by-weekday grid.
// Cells are coloured by intensity level; future days are left blank.
func Heatmap(w io.Writer, days []analytics.HeatmapDay, cfg Config) error {
	if len(days) == 0 {
		return fmt.Errorf("no heatmap data")
	}
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(append(globalOpts(cfg),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: weekdays, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(false),
			Min:        0,
			Max:        float32(len(levelColors) - 1),
			InRange:    &opts.VisualMapInRange{Color: levelColors},
		}),
	)...)

	firstWeekday := int(days[0].Date.Time().Weekday())
	weeks := (firstWeekday + len(days) + 6) / 7
	labels := make([]string, weeks)

	data := make([]opts.HeatMapData, 0, len(days))
	for i, d := range days {
		if d.Level == analytics.LevelFuture {
			continue
		}
		slot := firstWeekday + i
		week, weekday := slot/7, slot%7
		if d.Date.Day == 1 {
			labels[week] = d.Date.Time().Month().String()[:3]
		}
		data = append(data, opts.HeatMapData{
			Name:  fmt.Sprintf("%s: %d reviews", d.Date, d.Count),
			Value: [3]interface{}{week, weekday, levelRank[d.Level]},
		})
	}

	hm.SetXAxis(labels).AddSeries("reviews", data)
	return hm.Render(w)
}

// Accuracy renders per-day accuracy as a bar chart of percentages.
func Accuracy(w io.Writer, days []analytics.DayAccuracy, cfg Config) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(append(globalOpts(cfg),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "%"}),
		charts.WithColorsOpts(opts.Colors{"#5470C6"}),
	)...)

	labels := make([]string, len(days))
	values := make([]opts.BarData, len(days))
	for i, d := range days {
		labels[i] = d.Date.Time().Format("Jan 2")
		values[i] = opts.BarData{
			Name:  fmt.Sprintf("%s (%d reviews)", d.Date, d.Reviews),
			Value: int(d.Accuracy*100 + 0.5),
		}
	}
	bar.SetXAxis(labels).
		AddSeries("Accuracy", values).
		SetSeriesOptions(charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar.Render(w)
}

// RenderFile creates path and writes the output of render into it.
func RenderFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return f.Close()
}

// YearTitle is the default heatmap title for year.
func YearTitle(year int, total int) string {
	return fmt.Sprintf("%d reviews in %d", total, year)
}
