package config

// EngineConfig holds everything the strategy engine server needs: the HTTP
// surface, the upstream data sources, the risk parameters, and telemetry.
type EngineConfig struct {
	// server configs
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// upstream data sources
	SkipAPIURLs    []string `toml:"skip_api_urls" mapstructure:"skip_api_urls"`
	MarketsAPIURL  string   `toml:"markets_api_url" mapstructure:"markets_api_url"`
	ChainID        string   `toml:"chain_id" mapstructure:"chain_id"`
	AssetDir       string   `toml:"asset_dir" mapstructure:"asset_dir"`
	PairCatalog    string   `toml:"pair_catalog" mapstructure:"pair_catalog"`
	DownloadAssets bool     `toml:"download_assets" mapstructure:"download_assets"`

	// risk parameters
	MinHealthFactor    string `toml:"min_health_factor" mapstructure:"min_health_factor"`
	DefaultSlippageBps uint32 `toml:"default_slippage_bps" mapstructure:"default_slippage_bps"`
	LeverageBuffer     string `toml:"leverage_buffer" mapstructure:"leverage_buffer"`

	// market refresh cadence in seconds
	MarketRefreshSeconds int `toml:"market_refresh_seconds" mapstructure:"market_refresh_seconds"`

	// debounce window for plan recomputation in milliseconds
	DebounceMillis int `toml:"debounce_millis" mapstructure:"debounce_millis"`

	// OpenTelemetry configs
	ServiceName    string `toml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `toml:"service_version" mapstructure:"service_version"`
	Environment    string `toml:"environment" mapstructure:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing  bool   `toml:"enable_tracing" mapstructure:"enable_tracing"`
	UseOTLPTraces  bool   `toml:"use_otlp_traces" mapstructure:"use_otlp_traces"`
	OTLPTracesURL  string `toml:"otlp_traces_url" mapstructure:"otlp_traces_url"`
	EnableMetrics  bool   `toml:"enable_metrics" mapstructure:"enable_metrics"`
	UsePrometheus  bool   `toml:"use_prometheus" mapstructure:"use_prometheus"`
	UseOTLPMetrics bool   `toml:"use_otlp_metrics" mapstructure:"use_otlp_metrics"`
	OTLPMetricsURL string `toml:"otlp_metrics_url" mapstructure:"otlp_metrics_url"`
	EnableLogs     bool   `toml:"enable_logs" mapstructure:"enable_logs"`
	UseOTLPLogs    bool   `toml:"use_otlp_logs" mapstructure:"use_otlp_logs"`
	OTLPLogsURL    string `toml:"otlp_logs_url" mapstructure:"otlp_logs_url"`

	InsecureOTLP bool `toml:"insecure_otlp" mapstructure:"insecure_otlp"`

	// Development mode uses stdout exporters
	DevelopmentMode bool `toml:"development_mode" mapstructure:"development_mode"`
}
