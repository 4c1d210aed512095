package metrics

import (
	"Go2FlowEval/internal/model"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Row outcomes for the rows_total counter.
const (
	ResultMalformed   = "malformed"
	ResultUnmatched   = "unmatched"
	ResultOutOfWindow = "out_of_window"
	ResultMatched     = "matched"
)

// DefaultNamespace prefixes every metric name unless configured otherwise.
const DefaultNamespace = "go2floweval"

// Collectors holds the evaluation metrics of one process.
type Collectors struct {
	rows               *prometheus.CounterVec
	flows              *prometheus.GaugeVec
	flowsRejected      prometheus.Counter
	correlationSeconds prometheus.Histogram
	evaluation         *prometheus.GaugeVec
}

// New creates the collectors under namespace.
func New(namespace string) *Collectors {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collectors{
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Prediction rows processed, partitioned by outcome.",
			},
			[]string{"result"},
		),
		flows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "flows",
				Help:      "Flows of the last run by true and predicted label.",
			},
			[]string{"true_label", "predicted_label"},
		),
		flowsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_rejected_total",
				Help:      "Ground-truth records skipped because they could not be used.",
			},
		),
		correlationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "correlation_seconds",
				Help:      "Time spent correlating the prediction stream.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		evaluation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "evaluation_ratio",
				Help:      "Flow-level evaluation of the last run, Attack as positive class.",
			},
			[]string{"measure"},
		),
	}
}

// Register attaches the collectors to the supplied Prometheus registerer.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.rows,
		c.flows,
		c.flowsRejected,
		c.correlationSeconds,
		c.evaluation,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRejectedFlows counts skipped ground-truth records.
func (c *Collectors) ObserveRejectedFlows(n int) {
	if n > 0 {
		c.flowsRejected.Add(float64(n))
	}
}

// ObserveCorrelation records the row outcomes and duration of a pass.
func (c *Collectors) ObserveCorrelation(stats model.CorrelationStats, duration time.Duration) {
	c.rows.WithLabelValues(ResultMalformed).Add(float64(stats.RowsMalformed))
	c.rows.WithLabelValues(ResultUnmatched).Add(float64(stats.RowsUnmatched))
	c.rows.WithLabelValues(ResultOutOfWindow).Add(float64(stats.RowsOutOfWindow))
	c.rows.WithLabelValues(ResultMatched).Add(float64(stats.RowsMatched))
	if duration < 0 {
		duration = 0
	}
	c.correlationSeconds.Observe(duration.Seconds())
}

// ObserveSnapshot replaces the per-label flow gauges and the evaluation
// ratios with those of snap.
func (c *Collectors) ObserveSnapshot(snap *model.Snapshot, unsetLabel string) {
	c.flows.Reset()
	for i := range snap.Flows {
		f := &snap.Flows[i]
		predicted := f.PredictedLabel.String()
		if !f.PredictedLabel.IsSet() && unsetLabel != "" {
			predicted = unsetLabel
		}
		c.flows.WithLabelValues(f.TrueLabel.String(), predicted).Inc()
	}

	s := snap.Summary
	c.evaluation.WithLabelValues("accuracy").Set(s.Accuracy)
	c.evaluation.WithLabelValues("precision").Set(s.Precision)
	c.evaluation.WithLabelValues("recall").Set(s.Recall)
	c.evaluation.WithLabelValues("f1").Set(s.F1)
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
