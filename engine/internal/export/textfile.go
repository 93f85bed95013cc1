package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/fleetstats/fleetstats/engine/internal/netstats"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
)

// Metric family names written by the exporter.
const (
	FamilyAvailability = "fleetstats_network_availability_percent"
	FamilySampleCount  = "fleetstats_network_sample_count"
	FamilyAvailable    = "fleetstats_network_statistics_available"
	FamilyRunTimestamp = "fleetstats_run_timestamp_seconds"
)

// Textfile writes snapshots to a single file path.
type Textfile struct {
	path string
}

// NewTextfile returns an exporter writing to path.
func NewTextfile(path string) *Textfile {
	return &Textfile{path: path}
}

// Name implements the runner sink interface.
func (t *Textfile) Name() string { return "textfile" }

// Path returns the target file path.
func (t *Textfile) Path() string { return t.path }

// Publish renders snap and replaces the target file.
func (t *Textfile) Publish(ctx context.Context, snap *statcache.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("export: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, snap); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("export: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("export: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("export: rename: %w", err)
	}
	return nil
}

// Write renders snap in the Prometheus text exposition format.
func Write(w io.Writer, snap *statcache.Snapshot) error {
	for _, mf := range Families(snap) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("export: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Families builds the metric families for snap, ordered by period then role.
func Families(snap *statcache.Snapshot) []*dto.MetricFamily {
	avail := gaugeFamily(FamilyAvailability, "Network availability statistics in percent.")
	count := gaugeFamily(FamilySampleCount, "Node averages accumulated into the network series.")
	ok := gaugeFamily(FamilyAvailable, "1 when the network series had enough values for statistics.")
	ts := gaugeFamily(FamilyRunTimestamp, "Unix time the run was computed.")

	ts.Metric = append(ts.Metric, gauge(float64(snap.ComputedAt().Unix()), "run_id", snap.RunID()))

	for _, period := range snap.Periods() {
		for _, role := range snap.Roles() {
			st, available := snap.NetworkStatistics(period, role)
			ok.Metric = append(ok.Metric, gauge(boolValue(available), "period", period, "role", role))
			if !available {
				continue
			}
			count.Metric = append(count.Metric, gauge(float64(st.SampleCount), "period", period, "role", role))
			for _, s := range statValues(st) {
				avail.Metric = append(avail.Metric, gauge(s.value, "period", period, "role", role, "stat", s.name))
			}
		}
	}

	out := []*dto.MetricFamily{ts, ok}
	if len(avail.Metric) > 0 {
		out = append(out, avail, count)
	}
	return out
}

type namedValue struct {
	name  string
	value float64
}

func statValues(st netstats.Stats) []namedValue {
	p := st.Percentiles
	return []namedValue{
		{"mean", st.Mean},
		{"stddev", st.StdDev},
		{"central", st.Central},
		{"two_sigma_low", st.TwoSigmaLow},
		{"two_sigma_high", st.TwoSigmaHigh},
		{"p25", p.P25},
		{"p50", p.P50},
		{"p75", p.P75},
		{"p90", p.P90},
		{"p95", p.P95},
		{"p99", p.P99},
	}
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

// gauge builds a gauge sample from alternating label names and values.
func gauge(v float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Parse decodes a text exposition from r into metric families. A partial
// result with a non-fatal parse warning is still returned successfully.
func Parse(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("export: parse prometheus text: %w", err)
	}
	return mfs, nil
}

// ReadFile parses a previously exported textfile.
func ReadFile(path string) (map[string]*dto.MetricFamily, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}
