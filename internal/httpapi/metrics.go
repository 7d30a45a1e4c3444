package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/b0ase/clawminer/internal/daemon"
)

// metricsCollector polls the daemon on a fixed interval and republishes the
// same numbers exposed by /status as Prometheus gauges, in the style of a
// dedicated registry updated from a background snapshot loop.
type metricsCollector struct {
	daemon *daemon.Daemon

	peerCount       prometheus.Gauge
	mempoolSize     prometheus.Gauge
	hashRate        prometheus.Gauge
	difficulty      prometheus.Gauge
	blocksMined     prometheus.Gauge
	headerSyncDepth prometheus.Gauge
}

func newMetricsCollector(reg *prometheus.Registry, d *daemon.Daemon) *metricsCollector {
	c := &metricsCollector{
		daemon: d,
		peerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clawminer_peer_count", Help: "Number of connected gossip peers.",
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clawminer_mempool_size", Help: "Number of work items awaiting inclusion in a block.",
		}),
		hashRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clawminer_hash_rate", Help: "Average nonce attempts per second since the mining worker started.",
		}),
		difficulty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clawminer_difficulty", Help: "Current PoI difficulty integer.",
		}),
		blocksMined: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clawminer_blocks_mined_total", Help: "Total number of blocks mined locally.",
		}),
		headerSyncDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clawminer_header_sync_lag", Help: "Difference between chain tip height and locally synced header height.",
		}),
	}
	reg.MustRegister(c.peerCount, c.mempoolSize, c.hashRate, c.difficulty, c.blocksMined, c.headerSyncDepth)
	return c
}

func (c *metricsCollector) snapshot() {
	mining := c.daemon.MiningStatus()
	c.peerCount.Set(float64(c.daemon.PeerCount()))
	c.mempoolSize.Set(float64(mining.MempoolSize))
	c.hashRate.Set(mining.HashRate)
	c.difficulty.Set(float64(mining.Difficulty))
	c.blocksMined.Set(float64(mining.BlocksMined))

	hs := c.daemon.HeaderSyncStatus()
	c.headerSyncDepth.Set(float64(hs.ChainTipHeight - hs.HighestHeight))
}

func (c *metricsCollector) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.snapshot()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.snapshot()
		}
	}
}
