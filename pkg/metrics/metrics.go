package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder collects deploy pipeline metrics in a private registry. A CLI run is a
// batch job, so the registry is pushed to a Pushgateway instead of being scraped.
type Recorder struct {
	registry     *prometheus.Registry
	stepDuration *prometheus.HistogramVec
	deploys      *prometheus.CounterVec
}

// NewRecorder registers the pipeline collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lmb",
			Name:      "deploy_step_duration_seconds",
			Help:      "Duration of each deploy pipeline step.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"step", "outcome"}),
		deploys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lmb",
			Name:      "deploys_total",
			Help:      "Deploy pipeline runs by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.stepDuration, r.deploys)
	return r
}

// ObserveStep records how long a pipeline step took.
func (r *Recorder) ObserveStep(step, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.stepDuration.WithLabelValues(step, outcome).Observe(d.Seconds())
}

// CountDeploy increments the deploy counter for outcome.
func (r *Recorder) CountDeploy(outcome string) {
	if r == nil {
		return
	}
	r.deploys.WithLabelValues(outcome).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Push sends the collected metrics to the Pushgateway at url under job, grouped by function.
func (r *Recorder) Push(ctx context.Context, url, job, function string) error {
	if r == nil {
		return errors.New("nil recorder")
	}
	if strings.TrimSpace(url) == "" {
		return errors.New("pushgateway url is required")
	}
	pusher := push.New(url, job).Gatherer(r.registry)
	if function != "" {
		pusher = pusher.Grouping("function", function)
	}
	return pusher.PushContext(ctx)
}
