package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bilal/clashstat/internal/controller"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	traffic    *controller.Traffic
	conns      *controller.Connections
	proxies    controller.Proxies
	trafficErr error
}

func (f *fakeSource) Traffic(context.Context) (*controller.Traffic, error) {
	if f.trafficErr != nil {
		return nil, f.trafficErr
	}
	return f.traffic, nil
}

func (f *fakeSource) Connections(context.Context) (*controller.Connections, error) {
	return f.conns, nil
}

func (f *fakeSource) Proxies(context.Context) (controller.Proxies, error) { return f.proxies, nil }

type healthRecorder struct{ calls []bool }

func (h *healthRecorder) SetControllerHealthy(ok bool) { h.calls = append(h.calls, ok) }

func num(s string) *json.Number {
	n := json.Number(s)
	return &n
}

func strPtr(s string) *string { return &s }

func newSource() *fakeSource {
	return &fakeSource{
		traffic: &controller.Traffic{Up: num("120"), Down: num("4096"), UpTotal: num("102400")},
		conns: &controller.Connections{
			UploadTotal:   1,
			DownloadTotal: 5242880,
			Connections:   []controller.Connection{{ID: "a"}, {ID: "b"}},
		},
		proxies: controller.Proxies{
			"DIRECT": {Name: "DIRECT", Type: strPtr("Direct"), Now: strPtr("DIRECT")},
			"Auto":   {Name: "Auto", Type: strPtr("URLTest"), Now: strPtr("node-A")},
		},
	}
}

func TestCollect(t *testing.T) {
	h := &healthRecorder{}
	c := NewCollector(newSource(), "clash", time.Second, h)

	expected := `
# HELP clash_connections_active Number of active connections.
# TYPE clash_connections_active gauge
clash_connections_active 2
# HELP clash_proxy_info Proxy or proxy group with its type and currently selected target.
# TYPE clash_proxy_info gauge
clash_proxy_info{now="DIRECT",proxy_name="DIRECT",type="Direct"} 1
clash_proxy_info{now="node-A",proxy_name="Auto",type="URLTest"} 1
# HELP clash_traffic_download_speed_bytes Current download speed in bytes per second.
# TYPE clash_traffic_download_speed_bytes gauge
clash_traffic_download_speed_bytes 4096
# HELP clash_traffic_downloaded_bytes_total Bytes downloaded since the controller started.
# TYPE clash_traffic_downloaded_bytes_total counter
clash_traffic_downloaded_bytes_total 5.24288e+06
# HELP clash_traffic_upload_speed_bytes Current upload speed in bytes per second.
# TYPE clash_traffic_upload_speed_bytes gauge
clash_traffic_upload_speed_bytes 120
# HELP clash_traffic_uploaded_bytes_total Bytes uploaded since the controller started.
# TYPE clash_traffic_uploaded_bytes_total counter
clash_traffic_uploaded_bytes_total 102400
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"clash_connections_active",
		"clash_proxy_info",
		"clash_traffic_download_speed_bytes",
		"clash_traffic_downloaded_bytes_total",
		"clash_traffic_upload_speed_bytes",
		"clash_traffic_uploaded_bytes_total",
	)
	require.NoError(t, err)
	require.NotEmpty(t, h.calls)
	assert.True(t, h.calls[len(h.calls)-1])
}

func TestCollectProxyCount(t *testing.T) {
	c := NewCollector(newSource(), "clash", time.Second, nil)
	assert.Equal(t, 2, testutil.CollectAndCount(c, "clash_proxy_info"))
}

func TestCollectTrafficFailure(t *testing.T) {
	src := newSource()
	src.trafficErr = &controller.TransportError{Endpoint: "/traffic", Err: errors.New("refused")}
	h := &healthRecorder{}
	c := NewCollector(src, "clash", time.Second, h)

	expected := `
# HELP clash_scrape_success Whether the last request to the controller endpoint succeeded.
# TYPE clash_scrape_success gauge
clash_scrape_success{endpoint="/connections"} 1
clash_scrape_success{endpoint="/proxies"} 1
clash_scrape_success{endpoint="/traffic"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "clash_scrape_success"))
	assert.Equal(t, 0, testutil.CollectAndCount(c, "clash_traffic_upload_speed_bytes"))
	// totals fall back to /connections
	assert.Equal(t, 1, testutil.CollectAndCount(c, "clash_traffic_uploaded_bytes_total"))
	assert.False(t, h.calls[len(h.calls)-1])
}
