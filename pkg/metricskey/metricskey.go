// Package metricskey describes the metrics emitted by this repo.
package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsConnectionsOpened = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_connections_opened",
		Help:         "stats_mcp_connections_opened provides total new server connections",
		RequiredTags: []string{"server"},
	}

	StatsConnectionsReused = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_connections_reused",
		Help:         "stats_mcp_connections_reused provides total pooled connection reuses",
		RequiredTags: []string{"server"},
	}

	StatsConnectionsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_connections_failed",
		Help:         "stats_mcp_connections_failed provides total failed connection attempts",
		RequiredTags: []string{"server"},
	}

	StatsConnectionsEvicted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_connections_evicted",
		Help:         "stats_mcp_connections_evicted provides total idle-evicted connections",
		RequiredTags: []string{"server"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_tool_calls_succeeded",
		Help:         "stats_mcp_tool_calls_succeeded provides total remote tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_tool_calls_failed",
		Help:         "stats_mcp_tool_calls_failed provides total remote tool calls failed",
		RequiredTags: []string{"tool", "class"},
	}

	StatsSchemaPatches = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_schema_patches",
		Help:         "stats_mcp_schema_patches provides total corrective schema patches applied",
		RequiredTags: []string{"pass"},
	}

	StatsSchemaCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_schema_cache_hits",
		Help:         "stats_mcp_schema_cache_hits provides total schema translation cache hits",
		RequiredTags: []string{},
	}
)

// Perf
var (
	PerfConnect = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_connect",
		Help:         "perf_mcp_connect provides duration of server connect",
		RequiredTags: []string{"server"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_tool_call",
		Help:         "perf_mcp_tool_call provides duration of remote tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfConnect,
	&PerfToolCall,
	&StatsConnectionsEvicted,
	&StatsConnectionsFailed,
	&StatsConnectionsOpened,
	&StatsConnectionsReused,
	&StatsSchemaCacheHits,
	&StatsSchemaPatches,
	&StatsToolCallsFailed,
	&StatsToolCallsSucceeded,
}
