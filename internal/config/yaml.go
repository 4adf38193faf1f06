// Package config defines the jmxgate configuration document and binds it to
// viper: jmxgate.yaml, JMXGATE_* environment variables and command flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. JMXGATE_SERVER_PORT.
const EnvPrefix = "JMXGATE"

// Config is the top-level jmxgate configuration file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	RBAC       RBACConfig       `yaml:"rbac"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	RateLimit       int           `yaml:"rate_limit"`
	CORS            CORSConfig    `yaml:"cors"`
	TLS             TLSConfig     `yaml:"tls"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// TLSConfig controls TLS termination at the server level. Both files must be
// set to serve HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether a certificate pair is configured.
func (t TLSConfig) Enabled() bool { return t.CertFile != "" && t.KeyFile != "" }

// KubernetesConfig controls access to the cluster API.
type KubernetesConfig struct {
	// Kubeconfig is used outside a cluster. Empty means in-cluster, then
	// $KUBECONFIG or ~/.kube/config.
	Kubeconfig string        `yaml:"kubeconfig"`
	AuthMode   string        `yaml:"auth_mode"`
	Timeout    time.Duration `yaml:"timeout"`
}

// UpstreamConfig controls calls to Jolokia agents.
type UpstreamConfig struct {
	Timeout time.Duration     `yaml:"timeout"`
	TLS     UpstreamTLSConfig `yaml:"tls"`
}

// UpstreamTLSConfig configures TLS for https agents.
type UpstreamTLSConfig struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// RBACConfig names the ACL document. RBAC is disabled when ACLFile is empty.
type RBACConfig struct {
	ACLFile string `yaml:"acl_file"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8443,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 * 1024 * 1024,
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Kubernetes: KubernetesConfig{
			AuthMode: "kubernetes",
			Timeout:  10 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers the defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("kubernetes.kubeconfig", "")
	v.SetDefault("kubernetes.auth_mode", d.Kubernetes.AuthMode)
	v.SetDefault("kubernetes.timeout", d.Kubernetes.Timeout)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.tls.ca_file", "")
	v.SetDefault("upstream.tls.cert_file", "")
	v.SetDefault("upstream.tls.key_file", "")
	v.SetDefault("upstream.tls.insecure_skip_verify", false)
	v.SetDefault("rbac.acl_file", "")
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// JMXGATE_RBAC_ACL is the short form documented for deployments.
	v.BindEnv("rbac.acl_file", EnvPrefix+"_RBAC_ACL_FILE", EnvPrefix+"_RBAC_ACL")
}

// Load decodes the effective settings of v and validates them.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.MaxBodySize < 0 {
		return fmt.Errorf("%w: server.max_body_size must not be negative", ErrInvalidConfig)
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("%w: server.tls needs both cert_file and key_file", ErrInvalidConfig)
	}
	switch c.Kubernetes.AuthMode {
	case "", "kubernetes", "openshift":
	default:
		return fmt.Errorf("%w: kubernetes.auth_mode %q (want kubernetes or openshift)", ErrInvalidConfig, c.Kubernetes.AuthMode)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q (want text or json)", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// DefaultFile is the commented configuration written by `jmxgate config init`.
const DefaultFile = `# jmxgate configuration
# Every key can be overridden with JMXGATE_<SECTION>_<KEY>, e.g. JMXGATE_SERVER_PORT.

server:
  host: 0.0.0.0
  port: 8443
  shutdown_timeout: 30s
  max_body_size: 10485760   # bytes
  rate_limit: 0             # requests per minute per client IP, 0 disables
  cors:
    origins:
      - "*"
  tls:
    cert_file: ""
    key_file: ""

kubernetes:
  kubeconfig: ""            # empty: in-cluster, then $KUBECONFIG or ~/.kube/config
  auth_mode: kubernetes     # kubernetes (SelfSubjectAccessReview) or openshift
  timeout: 10s

# Jolokia agents inside the pods
upstream:
  timeout: 30s
  tls:
    ca_file: ""
    cert_file: ""
    key_file: ""
    insecure_skip_verify: false

# Role-based access control. Without an ACL file every caller allowed to
# update the pod is passed through. Also set by JMXGATE_RBAC_ACL.
rbac:
  acl_file: ""

logging:
  level: info               # debug, info, warn, error
  format: text              # text or json
`

// WriteDefaultFile writes DefaultFile to path.
func WriteDefaultFile(path string) error {
	return os.WriteFile(path, []byte(DefaultFile), 0644)
}
