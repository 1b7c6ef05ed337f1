// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 指标注册表
type Registry struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	validationsTotal *prometheus.CounterVec
	assignmentsTotal *prometheus.CounterVec
	candidatesScored *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	planningDuration prometheus.Histogram
}

var (
	registry *Registry
	once     sync.Once
)

// GetRegistry 获取全局注册表
func GetRegistry() *Registry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// NewRegistry 创建独立的注册表（测试中使用）
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busplan_http_requests_total",
			Help: "HTTP请求总数",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "busplan_http_request_duration_seconds",
			Help:    "HTTP请求延迟",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path"}),
		validationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busplan_validations_total",
			Help: "排班校验次数",
		}, []string{"result"}),
		assignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busplan_assignments_total",
			Help: "排班写入次数",
		}, []string{"op", "result"}),
		candidatesScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busplan_candidates_scored_total",
			Help: "候选评分次数",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busplan_planning_cache_lookups_total",
			Help: "规划进度缓存查询次数",
		}, []string{"result"}),
		planningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busplan_planning_status_duration_seconds",
			Help:    "规划进度计算耗时",
			Buckets: prometheus.DefBuckets,
		}),
	}

	r.registry.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.validationsTotal,
		r.assignmentsTotal,
		r.candidatesScored,
		r.cacheLookups,
		r.planningDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.handler = promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return r
}

// Handler 返回Prometheus格式的指标处理器
func (r *Registry) Handler() http.Handler {
	return r.handler
}

// Gather 导出当前指标
func (r *Registry) Gather() (int, error) {
	families, err := r.registry.Gather()
	return len(families), err
}

// ObserveRequest 记录请求指标
func (r *Registry) ObserveRequest(method, path string, status int, duration time.Duration) {
	r.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveValidation 记录校验结果
func (r *Registry) ObserveValidation(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	r.validationsTotal.WithLabelValues(result).Inc()
}

// ObserveAssignment 记录排班写入，result 为 created/blocked/deleted/error
func (r *Registry) ObserveAssignment(op, result string) {
	r.assignmentsTotal.WithLabelValues(op, result).Inc()
}

// ObserveScoring 记录候选评分数量
func (r *Registry) ObserveScoring(kind string, n int) {
	r.candidatesScored.WithLabelValues(kind).Add(float64(n))
}

// ObserveCacheLookup 记录缓存命中
func (r *Registry) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObservePlanningBuild 记录规划进度计算耗时
func (r *Registry) ObservePlanningBuild(duration time.Duration) {
	r.planningDuration.Observe(duration.Seconds())
}

// Handler 全局注册表的指标处理器
func Handler() http.Handler {
	return GetRegistry().Handler()
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	GetRegistry().ObserveRequest(method, path, status, duration)
}
