package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RepoCheckRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attache_repo_check_runs_total",
			Help: "Total number of repository configuration validator runs",
		},
	)

	RepoCheckFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attache_repo_check_failed_total",
			Help: "Total number of failed repository configuration checks",
		},
		[]string{"check"},
	)

	HostKeysInstalled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attache_host_keys_installed_total",
			Help: "Total number of host keys appended to the trust store",
		},
		[]string{"host", "algorithm"},
	)

	TrustFinalizeFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attache_trust_finalize_failed_total",
			Help: "Total number of failed trust store finalization passes",
		},
	)
)
