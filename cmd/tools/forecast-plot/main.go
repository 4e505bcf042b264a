// Command forecast-plot fits a weight forecast to a history and renders it
// as an image. The history comes from a date,weight CSV file or from a
// running calorie-report server.
//
//	forecast-plot -csv weights.csv -days 30 -out forecast.png
//	forecast-plot -server http://localhost:8080 -profile <id> -out forecast.svg
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/calorie.report/internal/forecast"
	"github.com/banshee-data/calorie.report/internal/httputil"
	"github.com/banshee-data/calorie.report/internal/timeutil"
)

// Config holds the command-line options.
type Config struct {
	CSVPath    string
	Server     string
	ProfileID  string
	DaysAhead  int
	Confidence float64
	Output     string
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.CSVPath, "csv", "", "CSV file with date,weight rows (kg)")
	flag.StringVar(&cfg.Server, "server", "", "calorie-report base URL to fetch history from")
	flag.StringVar(&cfg.ProfileID, "profile", "", "Profile ID (with -server)")
	flag.IntVar(&cfg.DaysAhead, "days", 30, "Days to forecast")
	flag.Float64Var(&cfg.Confidence, "confidence", 0.95, "Confidence level in (0, 1)")
	flag.StringVar(&cfg.Output, "out", "forecast.png", "Output image (.png, .svg or .pdf)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := run(ctx, cfg, httputil.NewStandardClient(nil))
	if err != nil {
		log.Fatalf("forecast-plot: %v", err)
	}
	fmt.Printf("%s: %d points, %s trend (%+.2f kg over %d days) -> %s\n",
		res.ModelUsed, res.DataPointsUsed, res.TrendDirection, res.TrendMagnitude, len(res.Dates), cfg.Output)
}

func run(ctx context.Context, cfg Config, client httputil.HTTPClient) (*forecast.Result, error) {
	var (
		dates   []time.Time
		weights []float64
		err     error
	)
	switch {
	case cfg.CSVPath != "" && cfg.Server != "":
		return nil, errors.New("use either -csv or -server, not both")
	case cfg.CSVPath != "":
		f, ferr := os.Open(cfg.CSVPath)
		if ferr != nil {
			return nil, ferr
		}
		defer f.Close()
		dates, weights, err = readCSV(f)
	case cfg.Server != "":
		if cfg.ProfileID == "" {
			return nil, errors.New("-profile is required with -server")
		}
		dates, weights, err = fetchHistory(ctx, client, cfg.Server, cfg.ProfileID)
	default:
		return nil, errors.New("one of -csv or -server is required")
	}
	if err != nil {
		return nil, err
	}

	res, err := forecast.NewEngine().ForecastContext(ctx, dates, weights, cfg.DaysAhead, cfg.Confidence)
	if err != nil {
		return nil, err
	}
	if err := renderPlot(dates, weights, res, cfg.Output); err != nil {
		return nil, err
	}
	return res, nil
}

// readCSV parses date,weight rows. A leading header row is skipped.
func readCSV(r io.Reader) ([]time.Time, []float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		dates   []time.Time
		weights []float64
	)
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if row == 1 && strings.EqualFold(rec[0], "date") {
			continue
		}
		d, err := timeutil.ParseDate(rec[0])
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", row, err)
		}
		w, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: invalid weight %q", row, rec[1])
		}
		dates = append(dates, d)
		weights = append(weights, w)
	}
	return dates, weights, nil
}

type progressListing struct {
	Records []struct {
		Date   string  `json:"date"`
		Weight float64 `json:"weight"`
	} `json:"records"`
}

// fetchHistory reads a profile's weight history (kg) from the server.
func fetchHistory(ctx context.Context, client httputil.HTTPClient, server, profileID string) ([]time.Time, []float64, error) {
	u := strings.TrimRight(server, "/") + "/api/profiles/" + url.PathEscape(profileID) + "/progress?units=kg"
	var listing progressListing
	if err := httputil.GetJSON(ctx, client, u, &listing); err != nil {
		return nil, nil, err
	}
	dates := make([]time.Time, len(listing.Records))
	weights := make([]float64, len(listing.Records))
	for i, rec := range listing.Records {
		d, err := timeutil.ParseDate(rec.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		dates[i] = d
		weights[i] = rec.Weight
	}
	return dates, weights, nil
}

func renderPlot(dates []time.Time, weights []float64, res *forecast.Result, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Weight Forecast - %s (%.0f%% interval)", res.ModelUsed, res.ConfidenceLevel*100)
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Weight (kg)"
	p.X.Tick.Marker = plot.TimeTicks{Format: timeutil.DateLayout}
	p.Add(plotter.NewGrid())

	observed := make(plotter.XYs, len(dates))
	for i, d := range dates {
		observed[i] = plotter.XY{X: float64(d.Unix()), Y: weights[i]}
	}
	predicted := make(plotter.XYs, len(res.Dates))
	lower := make(plotter.XYs, len(res.Dates))
	upper := make(plotter.XYs, len(res.Dates))
	for i, d := range res.Dates {
		x := float64(d.Unix())
		predicted[i] = plotter.XY{X: x, Y: res.PredictedWeight[i]}
		lower[i] = plotter.XY{X: x, Y: res.LowerBound[i]}
		upper[i] = plotter.XY{X: x, Y: res.UpperBound[i]}
	}

	obsLine, obsPoints, err := plotter.NewLinePoints(observed)
	if err != nil {
		return err
	}
	obsLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	obsLine.Width = vg.Points(1)
	obsPoints.GlyphStyle.Color = obsLine.Color
	obsPoints.GlyphStyle.Radius = vg.Points(1.5)

	predLine, err := plotter.NewLine(predicted)
	if err != nil {
		return err
	}
	predLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	predLine.Width = vg.Points(1.5)

	p.Add(obsLine, obsPoints, predLine)
	p.Legend.Add("observed", obsLine, obsPoints)
	p.Legend.Add("forecast", predLine)

	for _, bound := range []struct {
		name string
		pts  plotter.XYs
	}{{"lower", lower}, {"upper", upper}} {
		l, err := plotter.NewLine(bound.pts)
		if err != nil {
			return err
		}
		l.Color = color.RGBA{R: 214, G: 39, B: 40, A: 128}
		l.Width = vg.Points(1)
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(l)
		p.Legend.Add(bound.name, l)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(12*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
