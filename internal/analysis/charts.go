package analysis

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"journaling-go/internal/frame"
	"journaling-go/internal/metrics"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// FigureFile is the pre-post figure written next to the statistics table.
const FigureFile = "wellbeing_pre_post_changes.html"

// StatisticsFile is the published statistics table.
const StatisticsFile = "wellbeing_group_statistics.csv"

// boxValues returns min, Q1, median, Q3 and max.
func boxValues(xs []float64) []float64 {
	return []float64{
		metrics.Quantile(xs, 0),
		metrics.Quantile(xs, 0.25),
		metrics.Quantile(xs, 0.5),
		metrics.Quantile(xs, 0.75),
		metrics.Quantile(xs, 1),
	}
}

// ChangeLabel is the significance label of the pooled test, prefixed with an
// arrow for the direction of the mean change when significant.
func ChangeLabel(baseline, exit []float64) string {
	w, ok := metrics.Wilcoxon(baseline, exit)
	if !ok {
		return notAvailable
	}
	sig := metrics.SignificanceLabel(w.PValue)
	if sig == "ns" {
		return sig
	}
	arrow := "↓"
	if metrics.Mean(exit).Value > metrics.Mean(baseline).Value {
		arrow = "↑"
	}
	return arrow + " " + sig
}

func prePostChart(m Measure, participants *frame.Frame) *charts.BoxPlot {
	baseline, exit := Paired(participants, m.Code)

	bp := charts.NewBoxPlot()
	bp.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "400px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    m.Display,
			Subtitle: ChangeLabel(baseline, exit),
			Left:     "center",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  fmt.Sprintf("%s Self-Report Score", m.Label),
			Type:  "value",
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	items := make([]opts.BoxPlotData, 0, 2)
	if len(baseline) > 0 {
		items = append(items,
			opts.BoxPlotData{Name: "Pre-study", Value: boxValues(baseline)},
			opts.BoxPlotData{Name: "Post-study", Value: boxValues(exit)},
		)
	}
	bp.SetXAxis([]string{"Pre-study", "Post-study"}).AddSeries(m.Code, items)
	return bp
}

// RenderFigure writes one box plot per measure, baseline against exit.
func RenderFigure(w io.Writer, participants *frame.Frame, measures []Measure) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Pre-post changes (%d participants)", participants.Len())
	page.SetLayout(components.PageFlexLayout)
	for _, m := range measures {
		page.AddCharts(prePostChart(m, participants))
	}
	return page.Render(w)
}

// WriteFigure renders the figure to path.
func WriteFigure(path string, participants *frame.Frame, measures []Measure) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create figure: %w", err)
	}
	defer f.Close()
	return RenderFigure(f, participants, measures)
}
