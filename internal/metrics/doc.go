/*
Package metrics exports Prometheus gauges and counters for two
components: the Task Tracker and the Analysis Cache.

# Tracker metrics

provider_active_tasks (gauge), provider_completed_total,
provider_failed_total, provider_tokens_total (counters), and
provider_completion_seconds (histogram), all labeled by provider.

# Cache metrics

cache_hits_total, cache_misses_total, cache_evictions_total (counters
labeled by cache kind: "ast" or "analysis"), and cache_entries (a
gauge of current live entries).
*/
package metrics
