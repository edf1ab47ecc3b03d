package metrics

import (
	"encoding/json"
	"maps"
	"math"
	"net/http"
	"slices"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP        httpSummary        `json:"http"`
	Auth        map[string]float64 `json:"auth"`
	RateLimit   rateLimitInfo      `json:"rateLimit"`
	Invitations map[string]float64 `json:"invitations"`
	Mail        map[string]float64 `json:"mail"`
	DB          dbInfo             `json:"db"`
	Server      serverInfo         `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	MaxConns      float64 `json:"maxConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

// Handler returns an http.HandlerFunc that serves a live JSON digest of the
// registry.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleLive(w)
	}
}

func (m *Metrics) handleLive(w http.ResponseWriter) {
	summary, err := m.Summarize()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	gathered, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	f := make(families, len(gathered))
	for _, fam := range gathered {
		f[fam.GetName()] = fam
	}

	const (
		requests = "taskara_http_requests_total"
		latency  = "taskara_http_request_duration_seconds"
	)
	total := f.sum(requests, nil)
	failed := f.sum(requests, func(s *dto.Metric) bool { return label(s, "status_code") >= "400" })
	conns := f.by("taskara_db_pool_conns", "state")
	start := f.sum("taskara_server_start_time_seconds", nil)

	return &Summary{
		HTTP: httpSummary{
			TotalRequests: total,
			ErrorRate:     ratio(failed, total),
			P50Latency:    f.quantile(latency, 0.50),
			P95Latency:    f.quantile(latency, 0.95),
			P99Latency:    f.quantile(latency, 0.99),
		},
		Auth: f.by("taskara_auth_results_total", "result"),
		RateLimit: rateLimitInfo{
			Rejections: f.sum("taskara_ratelimit_rejections_total", nil),
		},
		Invitations: f.by("taskara_invitation_events_total", "event"),
		Mail:        f.by("taskara_mail_results_total", "result"),
		DB: dbInfo{
			MaxConns:      f.sum("taskara_db_pool_max_conns", nil),
			IdleConns:     conns["idle"],
			AcquiredConns: conns["acquired"],
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

// families indexes a gathered registry by metric name.
type families map[string]*dto.MetricFamily

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	return 0
}

func ratio(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole
}

// sum adds the counter or gauge samples of name accepted by keep. A nil keep
// accepts every sample.
func (f families) sum(name string, keep func(*dto.Metric) bool) float64 {
	var total float64
	for _, m := range f[name].GetMetric() {
		if keep == nil || keep(m) {
			total += value(m)
		}
	}
	return total
}

// by sums the samples of name grouped by the value of one label.
func (f families) by(name, key string) map[string]float64 {
	out := map[string]float64{}
	for _, m := range f[name].GetMetric() {
		if v := label(m, key); v != "" {
			out[v] += value(m)
		}
	}
	return out
}

// quantile estimates the q-quantile of a histogram family, merging every
// series and interpolating linearly inside the bucket that holds the rank.
func (f families) quantile(name string, q float64) float64 {
	cumulative := map[float64]uint64{}
	var n uint64
	for _, m := range f[name].GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		n += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			if ub := b.GetUpperBound(); !math.IsInf(ub, 1) {
				cumulative[ub] += b.GetCumulativeCount()
			}
		}
	}
	if n == 0 || len(cumulative) == 0 {
		return 0
	}

	bounds := slices.Sorted(maps.Keys(cumulative))
	rank := q * float64(n)
	var lower, below float64
	for _, upper := range bounds {
		count := float64(cumulative[upper])
		if count >= rank {
			if count == below {
				return upper
			}
			return lower + (upper-lower)*(rank-below)/(count-below)
		}
		lower, below = upper, count
	}
	return bounds[len(bounds)-1]
}
