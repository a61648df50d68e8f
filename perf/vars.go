package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	RequestLatency      = metric.NewHistogram("1m1s")
	FramesSentPerSecond = metric.NewCounter("10s1s")
	FramesRecvPerSecond = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
	DeliveredPerSecond  = metric.NewCounter("10s1s")
	ForwardedPerSecond  = metric.NewCounter("10s1s")
	DroppedPerSecond    = metric.NewCounter("10s1s")
	RejectedPerSecond   = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("lattice:FramesSent/s", FramesSentPerSecond)
	expvar.Publish("lattice:FramesRecv/s", FramesRecvPerSecond)
	expvar.Publish("lattice:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("lattice:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("lattice:Delivered/s", DeliveredPerSecond)
	expvar.Publish("lattice:Forwarded/s", ForwardedPerSecond)
	expvar.Publish("lattice:Dropped/s", DroppedPerSecond)
	expvar.Publish("lattice:Rejected/s", RejectedPerSecond)
	expvar.Publish("lattice:RequestLatency (µs)", RequestLatency)
}
