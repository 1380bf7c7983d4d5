package metrics

import (
	"io"

	"github.com/audiopass/audiopass/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds packetizer counters, labeled by codec
type Metrics struct {
	Frames          *prometheus.CounterVec
	Bytes           *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	Resyncs         *prometheus.CounterVec
	Discarded       *prometheus.CounterVec
	Discontinuities *prometheus.CounterVec
	FrameSize       *prometheus.HistogramVec

	Files *prometheus.CounterVec // by result: ok or error
}

// New creates and registers all metrics
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	counter := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: "audiopass", Name: name, Help: help},
			[]string{"codec"},
		)
	}

	return &Metrics{
		Frames:          counter("frames_total", "Total number of output frames"),
		Bytes:           counter("frame_bytes_total", "Total size of output frames"),
		Skipped:         counter("skipped_bytes_total", "Bytes dropped while searching for sync"),
		Resyncs:         counter("resyncs_total", "Sync words rejected after check"),
		Discarded:       counter("discarded_frames_total", "Parsed frames which are never output"),
		Discontinuities: counter("discontinuities_total", "Input discontinuities and corruptions"),

		FrameSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "audiopass",
				Name:      "frame_size_bytes",
				Help:      "Size of output frames in bytes",
				Buckets:   prometheus.ExponentialBuckets(128, 2, 9), // 128B to 32KB
			},
			[]string{"codec"},
		),

		Files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "audiopass",
				Name:      "files_total",
				Help:      "Total number of processed files",
			},
			[]string{"result"},
		),
	}
}

// AddStats - add the stats growth since prev
func (m *Metrics) AddStats(codec string, stats, prev core.Stats) {
	d := stats.Sub(prev)
	m.Frames.WithLabelValues(codec).Add(float64(d.Frames))
	m.Bytes.WithLabelValues(codec).Add(float64(d.Bytes))
	m.Skipped.WithLabelValues(codec).Add(float64(d.Skipped))
	m.Resyncs.WithLabelValues(codec).Add(float64(d.Resyncs))
	m.Discarded.WithLabelValues(codec).Add(float64(d.Discarded))
	m.Discontinuities.WithLabelValues(codec).Add(float64(d.Discontinuities))
}

func (m *Metrics) ObserveFrame(codec string, frame *core.Block) {
	m.FrameSize.WithLabelValues(codec).Observe(float64(len(frame.Data)))
}

func (m *Metrics) FileDone(err error) {
	if err != nil {
		m.Files.WithLabelValues("error").Inc()
	} else {
		m.Files.WithLabelValues("ok").Inc()
	}
}

// Dump - write all gathered metrics in text exposition format
func Dump(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}

	for _, mf := range families {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}

	return nil
}
