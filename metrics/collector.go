// Package metrics 以 Prometheus 指标暴露管理器事件与通知发布结果
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gqm/manager"
	"gqm/notify"
)

// Collector 管理器指标
//
// 注册在 Registry 上（manager.WithEventListener）统计所有管理器的事件，
// 作为 notify.WithRecorder 传入时同时统计通知发布。
type Collector struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	installedTables prometheus.Gauge
	publishes       *prometheus.CounterVec
}

var (
	_ manager.EventListener = (*Collector)(nil)
	_ notify.Recorder       = (*Collector)(nil)
)

// NewCollector 在独立的 prometheus.Registry 上创建指标；namespace 为空时为 "gqm"
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "gqm"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manager_events_total",
			Help:      "Completed manager operations by table and event kind.",
		}, []string{"table", "kind"}),
		installedTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manager_installed_tables",
			Help:      "Tables installed minus tables removed since start.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_publish_total",
			Help:      "Change notifications by subject and result.",
		}, []string{"subject", "result"}),
	}
	c.registry.MustRegister(c.events, c.installedTables, c.publishes)
	return c
}

// OnEvent 实现 manager.EventListener
func (c *Collector) OnEvent(_ context.Context, event manager.Event) {
	c.events.WithLabelValues(event.Table, string(event.Kind)).Inc()
	switch event.Kind {
	case manager.EventInstalled:
		c.installedTables.Inc()
	case manager.EventRemoved:
		c.installedTables.Dec()
	}
}

// RecordPublish 实现 notify.Recorder
func (c *Collector) RecordPublish(subject string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.publishes.WithLabelValues(subject, result).Inc()
}

// Registry 返回指标所在的 prometheus.Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回暴露指标的 HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
