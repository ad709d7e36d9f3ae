package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bilal/clashstat/internal/controller"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Source is the subset of the controller client the collector reads.
type Source interface {
	Traffic(ctx context.Context) (*controller.Traffic, error)
	Connections(ctx context.Context) (*controller.Connections, error)
	Proxies(ctx context.Context) (controller.Proxies, error)
}

// HealthReporter is told after every scrape whether the controller answered.
type HealthReporter interface {
	SetControllerHealthy(ok bool)
}

// Collector implements prometheus.Collector. Every scrape performs one
// request per endpoint; nothing is polled or cached in between.
type Collector struct {
	src     Source
	timeout time.Duration
	health  HealthReporter

	uploadSpeed       *prometheus.Desc
	downloadSpeed     *prometheus.Desc
	uploadTotal       *prometheus.Desc
	downloadTotal     *prometheus.Desc
	activeConnections *prometheus.Desc
	proxyInfo         *prometheus.Desc
	scrapeSuccess     *prometheus.Desc
}

func NewCollector(src Source, prefix string, timeout time.Duration, health HealthReporter) *Collector {
	fqName := func(name string) string {
		return prometheus.BuildFQName(prefix, "", name)
	}
	return &Collector{
		src:     src,
		timeout: timeout,
		health:  health,
		uploadSpeed: prometheus.NewDesc(
			fqName("traffic_upload_speed_bytes"),
			"Current upload speed in bytes per second.",
			nil, nil,
		),
		downloadSpeed: prometheus.NewDesc(
			fqName("traffic_download_speed_bytes"),
			"Current download speed in bytes per second.",
			nil, nil,
		),
		uploadTotal: prometheus.NewDesc(
			fqName("traffic_uploaded_bytes_total"),
			"Bytes uploaded since the controller started.",
			nil, nil,
		),
		downloadTotal: prometheus.NewDesc(
			fqName("traffic_downloaded_bytes_total"),
			"Bytes downloaded since the controller started.",
			nil, nil,
		),
		activeConnections: prometheus.NewDesc(
			fqName("connections_active"),
			"Number of active connections.",
			nil, nil,
		),
		proxyInfo: prometheus.NewDesc(
			fqName("proxy_info"),
			"Proxy or proxy group with its type and currently selected target.",
			[]string{"proxy_name", "type", "now"}, nil,
		),
		scrapeSuccess: prometheus.NewDesc(
			fqName("scrape_success"),
			"Whether the last request to the controller endpoint succeeded.",
			[]string{"endpoint"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uploadSpeed
	ch <- c.downloadSpeed
	ch <- c.uploadTotal
	ch <- c.downloadTotal
	ch <- c.activeConnections
	ch <- c.proxyInfo
	ch <- c.scrapeSuccess
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var (
		wg          sync.WaitGroup
		traffic     *controller.Traffic
		connections *controller.Connections
		proxies     controller.Proxies
		trafficErr  error
		connErr     error
		proxiesErr  error
	)

	// the three endpoints are independent, fetch them concurrently
	wg.Add(3)
	go func() {
		defer wg.Done()
		traffic, trafficErr = c.src.Traffic(ctx)
	}()
	go func() {
		defer wg.Done()
		connections, connErr = c.src.Connections(ctx)
	}()
	go func() {
		defer wg.Done()
		proxies, proxiesErr = c.src.Proxies(ctx)
	}()
	wg.Wait()

	c.success(ch, "/traffic", trafficErr)
	c.success(ch, "/connections", connErr)
	c.success(ch, "/proxies", proxiesErr)
	if c.health != nil {
		c.health.SetControllerHealthy(trafficErr == nil && connErr == nil && proxiesErr == nil)
	}

	var upTotal, downTotal *float64
	if connections != nil {
		ch <- prometheus.MustNewConstMetric(c.activeConnections, prometheus.GaugeValue, float64(len(connections.Connections)))
		up, down := float64(connections.UploadTotal), float64(connections.DownloadTotal)
		upTotal, downTotal = &up, &down
	}
	if traffic != nil {
		gauge(ch, c.uploadSpeed, traffic.Up)
		gauge(ch, c.downloadSpeed, traffic.Down)
		// prefer the totals carried by /traffic when present
		if v, ok := toFloat(traffic.UpTotal); ok {
			upTotal = &v
		}
		if v, ok := toFloat(traffic.DownTotal); ok {
			downTotal = &v
		}
	}
	if upTotal != nil {
		ch <- prometheus.MustNewConstMetric(c.uploadTotal, prometheus.CounterValue, *upTotal)
	}
	if downTotal != nil {
		ch <- prometheus.MustNewConstMetric(c.downloadTotal, prometheus.CounterValue, *downTotal)
	}

	for name, p := range proxies {
		ch <- prometheus.MustNewConstMetric(c.proxyInfo, prometheus.GaugeValue, 1, name, deref(p.Type), deref(p.Now))
	}
}

func (c *Collector) success(ch chan<- prometheus.Metric, endpoint string, err error) {
	v := 1.0
	if err != nil {
		v = 0
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("scrape failed")
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, v, endpoint)
}

func gauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, n *json.Number) {
	if v, ok := toFloat(n); ok {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v)
	}
}

func toFloat(n *json.Number) (float64, bool) {
	if n == nil {
		return 0, false
	}
	v, err := n.Float64()
	return v, err == nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
