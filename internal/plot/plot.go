// Package plot renders summary charts from written catalogues: tracked
// halo counts per snapshot and the halo mass function at the final
// snapshot, as a standalone HTML page.
package plot

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/darrencroton/mimic/internal/writer"
)

// massBinWidth is the mass-function bin width in dex.
const massBinWidth = 0.2

// ErrNoRecords indicates catalogues with no halo entries to plot.
var ErrNoRecords = errors.New("plot: catalogues contain no records")

// Data aggregates plottable quantities across catalogue files.
type Data struct {
	// SnapshotCounts is the number of tracked entries per snapshot.
	SnapshotCounts []int64
	// finalMasses holds log10 Mvir of entries at the final snapshot,
	// mergers excluded.
	finalMasses []float64
	trees       int
}

// Aggregate reads the given catalogue files and folds them into one data
// set.
func Aggregate(paths []string) (*Data, error) {
	d := &Data{}

	for _, path := range paths {
		err := d.addFile(path)
		if err != nil {
			return nil, err
		}
	}

	if len(d.SnapshotCounts) == 0 {
		return nil, ErrNoRecords
	}

	return d, nil
}

func (d *Data) addFile(path string) error {
	r, err := writer.OpenReader(path)
	if err != nil {
		return err
	}

	defer r.Close()

	blocks, err := r.ReadAll()
	if err != nil {
		return err
	}

	for _, block := range blocks {
		d.trees++

		for len(d.SnapshotCounts) < len(block.SnapshotCounts) {
			d.SnapshotCounts = append(d.SnapshotCounts, 0)
		}

		for snap, n := range block.SnapshotCounts {
			d.SnapshotCounts[snap] += int64(n)
		}

		finalSnap := int32(len(block.SnapshotCounts) - 1)

		for i := range block.Records {
			rec := &block.Records[i]
			if rec.SnapNum != finalSnap || rec.MergeID != writer.NoID || rec.Mvir <= 0 {
				continue
			}

			d.finalMasses = append(d.finalMasses, math.Log10(rec.Mvir))
		}
	}

	return nil
}

// WriteHTML renders both charts into one HTML page at path.
func (d *Data) WriteHTML(path string) error {
	page := components.NewPage()
	page.SetPageTitle("mimic catalogue summary")
	page.AddCharts(d.countChart(), d.massFunctionChart())

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("plot: create %s: %w", path, err)
	}

	err = page.Render(f)
	if err != nil {
		f.Close()

		return fmt.Errorf("plot: render %s: %w", path, err)
	}

	return f.Close()
}

func (d *Data) countChart() *charts.Line {
	labels := make([]string, len(d.SnapshotCounts))
	series := make([]opts.LineData, len(d.SnapshotCounts))

	for snap, n := range d.SnapshotCounts {
		labels[snap] = strconv.Itoa(snap)
		series[snap] = opts.LineData{Value: n}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Tracked halos per snapshot",
			Subtitle: fmt.Sprintf("%d trees", d.trees),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Snapshot"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Halos"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("Halos", series,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)

	return line
}

// massFunctionChart bins final-snapshot masses into fixed-width dex bins.
func (d *Data) massFunctionChart() *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Halo mass function (final snapshot)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "log10 Mvir"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count", Type: "log"}),
	)

	if len(d.finalMasses) == 0 {
		return bar
	}

	lo, hi := d.finalMasses[0], d.finalMasses[0]
	for _, m := range d.finalMasses {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}

	first := math.Floor(lo / massBinWidth)
	bins := int(math.Floor(hi/massBinWidth)-first) + 1
	counts := make([]int64, bins)

	for _, m := range d.finalMasses {
		counts[int(math.Floor(m/massBinWidth)-first)]++
	}

	labels := make([]string, bins)
	series := make([]opts.BarData, bins)

	for i := range counts {
		labels[i] = fmt.Sprintf("%.1f", (first+float64(i))*massBinWidth)
		series[i] = opts.BarData{Value: counts[i]}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("Halos", series)

	return bar
}
