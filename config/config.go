// Package config loads and validates the Foghorn logging configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/foghorn/errs"
)

// Transport names the remote sink's network transport.
type Transport string

const (
	// TransportUDP sends datagrams without connection state.
	TransportUDP Transport = "udp"
	// TransportTCP sends over a persistent stream connection.
	TransportTCP Transport = "tcp"
	// TransportTLS sends over an encrypted stream connection.
	TransportTLS Transport = "tls"
)

// UnmarshalYAML accepts transport names case-insensitively.
func (t *Transport) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*t = ""
		return nil
	}
	*t = Transport(strings.ToLower(strings.TrimSpace(node.Value)))
	return nil
}

// Protocol names the remote sink's message framing.
type Protocol string

const (
	// ProtocolBSD frames messages in the classic BSD style. "3164" is an
	// accepted alias.
	ProtocolBSD Protocol = "bsd"
	// Protocol5424 frames messages in the RFC 5424 style.
	Protocol5424 Protocol = "5424"
)

// UnmarshalYAML accepts protocol names case-insensitively, including the
// numeric aliases.
func (p *Protocol) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*p = ""
		return nil
	}
	raw := strings.ToLower(strings.TrimSpace(node.Value))
	switch raw {
	case "3164", "rfc3164":
		*p = ProtocolBSD
	case "rfc5424":
		*p = Protocol5424
	default:
		*p = Protocol(raw)
	}
	return nil
}

// Duration wraps time.Duration so YAML values like "10s" parse naturally.
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and plain integer seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("flushTimeout: invalid duration %q", node.Value)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// FileLogSettings configures the rotating file sink.
type FileLogSettings struct {
	// Dir holds the log directory. Empty means the platform default for the
	// application name.
	Dir string `yaml:"dir"`
	// DaysToKeep bounds rotated file retention in [0,30]; 0 keeps rotated
	// files indefinitely. Nil applies the default.
	DaysToKeep *int `yaml:"daysToKeep"`
}

// RetentionDays returns the effective retention, applying the default when
// unset.
func (f FileLogSettings) RetentionDays() int {
	if f.DaysToKeep == nil {
		return defaultDaysToKeep
	}
	return *f.DaysToKeep
}

// SysLogSettings configures the remote syslog-style sink.
type SysLogSettings struct {
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	Transport Transport `yaml:"transport"`
	Protocol  Protocol  `yaml:"protocol"`
	// SendInfoNotifications admits info-level messages to the remote sink.
	SendInfoNotifications bool `yaml:"sendInfoNotifications"`
}

// ClusterSettings places the process in a multi-worker cluster.
type ClusterSettings struct {
	// Role is master or worker. The master owns the sinks; workers forward.
	Role string `yaml:"role"`
	// Listen is the master's relay bind address.
	Listen string `yaml:"listen"`
	// MasterURL is the master relay endpoint a worker dials.
	MasterURL string `yaml:"masterURL"`
}

// TelemetrySettings configures optional OTLP metric export.
type TelemetrySettings struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Settings is the full Foghorn configuration tree.
type Settings struct {
	AppName        string            `yaml:"appName"`
	DisableConsole bool              `yaml:"disableConsole"`
	FileLog        *FileLogSettings  `yaml:"fileLog"`
	SysLog         *SysLogSettings   `yaml:"sysLog"`
	DebugLevel     int               `yaml:"debugLevel"`
	Cluster        *ClusterSettings  `yaml:"cluster"`
	QueueSize      int               `yaml:"queueSize"`
	FlushTimeout   Duration          `yaml:"flushTimeout"`
	Telemetry      TelemetrySettings `yaml:"telemetry"`
}

const (
	defaultDaysToKeep   = 7
	defaultSysLogHost   = "localhost"
	defaultSysLogPort   = 514
	defaultQueueSize    = 1024
	defaultFlushTimeout = Duration(10 * time.Second)
	defaultServiceName  = "foghorn"
	maxDaysToKeep       = 30
)

// Default returns the default Foghorn configuration. AppName must still be
// supplied before the settings validate.
func Default() Settings {
	return Settings{
		QueueSize:    defaultQueueSize,
		FlushTimeout: defaultFlushTimeout,
		Telemetry:    TelemetrySettings{ServiceName: defaultServiceName},
	}
}

// Option mutates settings during construction.
type Option func(*Settings)

// New builds settings from the defaults, the application name, and options.
func New(appName string, opts ...Option) Settings {
	cfg := Default()
	cfg.AppName = strings.TrimSpace(appName)
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.normalise()
	return cfg
}

// WithoutConsole disables the console sink.
func WithoutConsole() Option {
	return func(s *Settings) { s.DisableConsole = true }
}

// WithFileLog enables the rotating file sink. An empty dir selects the
// platform default location; daysToKeep < 0 selects the default retention.
func WithFileLog(dir string, daysToKeep int) Option {
	return func(s *Settings) {
		fl := &FileLogSettings{Dir: strings.TrimSpace(dir)}
		if daysToKeep >= 0 {
			fl.DaysToKeep = &daysToKeep
		}
		s.FileLog = fl
	}
}

// WithSysLog enables the remote sink.
func WithSysLog(host string, port int, transport Transport, sendInfo bool) Option {
	return func(s *Settings) {
		s.SysLog = &SysLogSettings{
			Host:                  strings.TrimSpace(host),
			Port:                  port,
			Transport:             transport,
			SendInfoNotifications: sendInfo,
		}
	}
}

// WithDebugLevel sets the initial debug rank ceiling.
func WithDebugLevel(level int) Option {
	return func(s *Settings) { s.DebugLevel = level }
}

// WithClusterMaster places the process as the cluster master.
func WithClusterMaster(listen string) Option {
	return func(s *Settings) {
		s.Cluster = &ClusterSettings{Role: "master", Listen: strings.TrimSpace(listen)}
	}
}

// WithClusterWorker places the process as a cluster worker.
func WithClusterWorker(masterURL string) Option {
	return func(s *Settings) {
		s.Cluster = &ClusterSettings{Role: "worker", MasterURL: strings.TrimSpace(masterURL)}
	}
}

// WithTelemetry enables OTLP metric export.
func WithTelemetry(endpoint, serviceName string) Option {
	return func(s *Settings) {
		s.Telemetry = TelemetrySettings{
			OTLPEndpoint: strings.TrimSpace(endpoint),
			ServiceName:  strings.TrimSpace(serviceName),
		}
	}
}

// FromEnv loads configuration from environment variables, overriding
// defaults. Malformed numeric or boolean values are ignored in favor of the
// default; Validate catches out-of-range results.
func FromEnv() Settings {
	cfg := Default()
	if v := strings.TrimSpace(os.Getenv("FOGHORN_APP_NAME")); v != "" {
		cfg.AppName = v
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_DISABLE_CONSOLE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DisableConsole = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_DEBUG_LEVEL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DebugLevel = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_FILE_DIR")); v != "" {
		cfg.FileLog = &FileLogSettings{Dir: v}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_FILE_DAYS_TO_KEEP")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if cfg.FileLog == nil {
				cfg.FileLog = &FileLogSettings{}
			}
			cfg.FileLog.DaysToKeep = &n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_SYSLOG_HOST")); v != "" {
		cfg.SysLog = &SysLogSettings{Host: v}
	}
	if cfg.SysLog != nil {
		if v := strings.TrimSpace(os.Getenv("FOGHORN_SYSLOG_PORT")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.SysLog.Port = n
			}
		}
		if v := strings.TrimSpace(os.Getenv("FOGHORN_SYSLOG_TRANSPORT")); v != "" {
			cfg.SysLog.Transport = Transport(strings.ToLower(v))
		}
		if v := strings.TrimSpace(os.Getenv("FOGHORN_SYSLOG_SEND_INFO")); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				cfg.SysLog.SendInfoNotifications = b
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_CLUSTER_ROLE")); v != "" {
		cfg.Cluster = &ClusterSettings{
			Role:      strings.ToLower(v),
			Listen:    strings.TrimSpace(os.Getenv("FOGHORN_CLUSTER_LISTEN")),
			MasterURL: strings.TrimSpace(os.Getenv("FOGHORN_CLUSTER_MASTER_URL")),
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_FLUSH_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.FlushTimeout = Duration(dur)
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOGHORN_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	cfg.normalise()
	return cfg
}

// Load reads settings from a YAML file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := FromEnv()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, errs.New("config", errs.CodeInvalidConfig,
			errs.WithMessage("parse config file"),
			errs.WithCause(err))
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads settings from the file when it exists; otherwise it
// falls back to defaults plus environment overrides. The boolean reports
// whether the file was read.
func LoadOrDefault(path string) (Settings, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, false, err
	}
	cfg = FromEnv()
	if err := cfg.Validate(); err != nil {
		return Settings{}, false, err
	}
	return cfg, false, nil
}

// Normalised returns a copy with unset fields filled from the defaults.
// Hand-built Settings literals should pass through here before Validate.
func (s Settings) Normalised() Settings {
	out := s
	(&out).normalise()
	return out
}

// normalise fills unset fields with defaults. It never rejects; Validate
// does.
func (s *Settings) normalise() {
	s.AppName = strings.TrimSpace(s.AppName)
	if s.QueueSize <= 0 {
		s.QueueSize = defaultQueueSize
	}
	if s.FlushTimeout <= 0 {
		s.FlushTimeout = defaultFlushTimeout
	}
	if s.Telemetry.ServiceName == "" {
		s.Telemetry.ServiceName = defaultServiceName
	}
	if s.SysLog != nil {
		if strings.TrimSpace(s.SysLog.Host) == "" {
			s.SysLog.Host = defaultSysLogHost
		}
		if s.SysLog.Port == 0 {
			s.SysLog.Port = defaultSysLogPort
		}
		if s.SysLog.Transport == "" {
			s.SysLog.Transport = TransportUDP
		}
		if s.SysLog.Protocol == "" {
			s.SysLog.Protocol = ProtocolBSD
		}
	}
	if s.Cluster != nil {
		s.Cluster.Role = strings.ToLower(strings.TrimSpace(s.Cluster.Role))
	}
}

// Validate performs semantic validation. The first violation wins and is
// reported as an invalid-configuration envelope naming the field.
func (s Settings) Validate() error {
	if s.AppName == "" {
		return errs.InvalidConfig("appName", "application name required")
	}
	if s.DebugLevel < 0 {
		return errs.InvalidConfig("debugLevel", "debug level must be >= 0")
	}
	if s.FileLog != nil {
		days := s.FileLog.RetentionDays()
		if days < 0 || days > maxDaysToKeep {
			return errs.InvalidConfig("fileLog.daysToKeep",
				fmt.Sprintf("days to keep must be within [0,%d]", maxDaysToKeep))
		}
	}
	if s.SysLog != nil {
		if s.SysLog.Port < 1 || s.SysLog.Port > 65535 {
			return errs.InvalidConfig("sysLog.port", "port must be within [1,65535]")
		}
		switch s.SysLog.Transport {
		case TransportUDP, TransportTCP, TransportTLS:
		default:
			return errs.InvalidConfig("sysLog.transport", "transport must be udp, tcp, or tls")
		}
		switch s.SysLog.Protocol {
		case ProtocolBSD, Protocol5424:
		default:
			return errs.InvalidConfig("sysLog.protocol", "protocol must be bsd, 3164, or 5424")
		}
	}
	if s.Cluster != nil {
		switch s.Cluster.Role {
		case "master":
			if strings.TrimSpace(s.Cluster.Listen) == "" {
				return errs.InvalidConfig("cluster.listen", "master requires a listen address")
			}
		case "worker":
			if strings.TrimSpace(s.Cluster.MasterURL) == "" {
				return errs.InvalidConfig("cluster.masterURL", "worker requires the master relay URL")
			}
		default:
			return errs.InvalidConfig("cluster.role", "role must be master or worker")
		}
	}
	if s.QueueSize <= 0 {
		return errs.InvalidConfig("queueSize", "queue size must be > 0")
	}
	if s.FlushTimeout <= 0 {
		return errs.InvalidConfig("flushTimeout", "flush timeout must be > 0")
	}
	return nil
}
