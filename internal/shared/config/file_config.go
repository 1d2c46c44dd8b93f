package config

// FileConfig mirrors the YAML file. Scalars are strings so ${ENV}
// references can be expanded before they are parsed; unset fields keep their
// defaults.
type FileConfig struct {
	Server        *ServerFileConfig        `yaml:"server"`
	Workspace     *WorkspaceFileConfig     `yaml:"workspace"`
	Approval      *ApprovalFileConfig      `yaml:"approval"`
	Remote        *RemoteFileConfig        `yaml:"remote"`
	Search        *SearchFileConfig        `yaml:"search"`
	Logging       *LoggingFileConfig       `yaml:"logging"`
	Observability *ObservabilityFileConfig `yaml:"observability"`
}

type ServerFileConfig struct {
	Host            string   `yaml:"host"`
	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ReadTimeout     string   `yaml:"read_timeout"`
	WriteTimeout    string   `yaml:"write_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	SendBuffer      string   `yaml:"send_buffer"`
	Debug           *bool    `yaml:"debug"`
}

type WorkspaceFileConfig struct {
	Directories     []string `yaml:"directories"`
	ReadConcurrency string   `yaml:"read_concurrency"`
}

type ApprovalFileConfig struct {
	PendingTTL    string `yaml:"pending_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

type RemoteFileConfig struct {
	URL                  string `yaml:"url"`
	MaxReconnectInterval string `yaml:"reconnect_max_interval"`
}

type SearchFileConfig struct {
	DisableGitGrep    *bool `yaml:"disable_git_grep"`
	DisableSystemGrep *bool `yaml:"disable_system_grep"`
}

type LoggingFileConfig struct {
	Level  string `yaml:"level"`
	Dir    string `yaml:"dir"`
	Stderr *bool  `yaml:"stderr"`
}

type ObservabilityFileConfig struct {
	Metrics *MetricsFileConfig `yaml:"metrics"`
	Tracing *TracingFileConfig `yaml:"tracing"`
}

type MetricsFileConfig struct {
	Enabled *bool `yaml:"enabled"`
}

type TracingFileConfig struct {
	Enabled        *bool  `yaml:"enabled"`
	Exporter       string `yaml:"exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ZipkinEndpoint string `yaml:"zipkin_endpoint"`
	SampleRate     string `yaml:"sample_rate"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}
