/*
Package config loads and validates pagestate configuration.

Sources are applied in increasing priority: compiled-in defaults (NewDefault),
a YAML file (LoadFromFile), then PAGESTATE_* environment variables
(LoadFromEnv). Validate should be called once all sources are applied.

Example file:

	global:
	  log_level: INFO
	  log_file: /var/log/pagestated.log
	  log_max_size: 100MB
	  metrics_port: 9090
	page_store:
	  eviction_policy: size   # count | size
	  max_pages: 10
	  max_bytes: 10MB
	  page_ttl: 30m
	data_store:
	  type: bolt              # none | memory | bolt | s3
	  path: /var/lib/pagestate/pages.db
	  circuit_breaker:
	    enabled: true
	    max_failures: 5
	    open_timeout: 30s
	versioning:
	  max_versions: 20
	render:
	  redirect_policy: auto   # auto | never | always
	  render_strategy: redirect_to_buffer
	  enable_redirect_for_stateless_page: true
*/
package config
