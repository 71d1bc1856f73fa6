package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// ValidatorMode selects how handshake tokens become an identity
type ValidatorMode string

const (
	ValidatorAccept ValidatorMode = "accept"
	ValidatorLookup ValidatorMode = "lookup"
)

// StoreMode represents the identity store behind the lookup validator
type StoreMode string

const (
	StoreMemory     StoreMode = "memory"
	StoreFile       StoreMode = "file"
	StoreKubernetes StoreMode = "kubernetes"
)

// SurfaceMode selects the local toggle control
type SurfaceMode string

const (
	SurfaceTerminal SurfaceMode = "terminal"
	SurfaceHeadless SurfaceMode = "headless"
)

// DeviceEventsMode selects the platform device notification source
type DeviceEventsMode string

const (
	DeviceEventsNone DeviceEventsMode = "none"
	DeviceEventsDBus DeviceEventsMode = "dbus"
)

// ControlTransport selects the control IPC transport
type ControlTransport string

const (
	ControlNone ControlTransport = "none"
	ControlUnix ControlTransport = "unix"
	ControlZMQ  ControlTransport = "zmq"
)

// FailurePolicy is what the process does when the listener worker fails
type FailurePolicy string

const (
	FailureExit    FailurePolicy = "exit"
	FailureRestart FailurePolicy = "restart"
	FailureIgnore  FailurePolicy = "ignore"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug     bool
	LogFormat string
	LogFile   string

	// Listener
	ListenPort     int
	RecvBufferSize int
	MaxTokenLength int
	DatagramPort   int
	FailurePolicy  FailurePolicy

	// Identity
	Validator           ValidatorMode
	IdentityStore       StoreMode
	StaticIdentities    string
	IdentityFile        string
	KubeConfigPath      string
	KubeContext         string
	Namespace           string
	IdentitySecretLabel string

	// Surfaces
	Surface      SurfaceMode
	DeviceEvents DeviceEventsMode

	// Control
	ControlTransport   ControlTransport
	ControlSocket      string
	ControlZMQEndpoint string

	// Server
	HealthServerPort string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Debug:     getEnvBool("DEBUG", false),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   getEnv("LOG_FILE", ""),

		ListenPort:     getEnvInt("LISTEN_PORT", 27015),
		RecvBufferSize: getEnvInt("RECV_BUFFER_SIZE", 1024),
		MaxTokenLength: getEnvInt("MAX_TOKEN_LENGTH", 50),
		DatagramPort:   getEnvInt("DATAGRAM_PORT", 0),
		FailurePolicy:  FailurePolicy(strings.ToLower(getEnv("LISTENER_FAILURE_POLICY", string(FailureExit)))),

		Validator:           ValidatorMode(strings.ToLower(getEnv("VALIDATOR", string(ValidatorAccept)))),
		IdentityStore:       determineStoreMode(),
		StaticIdentities:    getEnv("STATIC_IDENTITIES", ""),
		IdentityFile:        getEnv("IDENTITY_FILE", ""),
		KubeConfigPath:      getEnv("KUBECONFIG", ""),
		KubeContext:         getEnv("KUBE_CONTEXT", ""),
		Namespace:           determineNamespace(),
		IdentitySecretLabel: getEnv("IDENTITY_SECRET_LABEL", "devicesim-identity"),

		Surface:      SurfaceMode(strings.ToLower(getEnv("SURFACE", string(SurfaceTerminal)))),
		DeviceEvents: DeviceEventsMode(strings.ToLower(getEnv("DEVICE_EVENTS", string(DeviceEventsNone)))),

		ControlTransport:   ControlTransport(strings.ToLower(getEnv("CONTROL_TRANSPORT", string(ControlUnix)))),
		ControlSocket:      getEnv("CONTROL_SOCKET", defaultControlSocket()),
		ControlZMQEndpoint: getEnv("CONTROL_ZMQ_ENDPOINT", "tcp://127.0.0.1:5555"),

		HealthServerPort: getEnv("HEALTH_SERVER_PORT", "8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BindFlags registers command-line overrides on fs. Defaults are the
// values already loaded, so flags win over the environment.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "write logs to this file instead of stdout")
	fs.IntVarP(&c.ListenPort, "port", "p", c.ListenPort, "TCP port for credential delivery")
	fs.IntVar(&c.DatagramPort, "datagram-port", c.DatagramPort, "UDP toggle port (0 disables)")
	fs.IntVar(&c.RecvBufferSize, "recv-buffer", c.RecvBufferSize, "receive buffer size in bytes")
	fs.IntVar(&c.MaxTokenLength, "max-token", c.MaxTokenLength, "maximum token length in bytes, terminator included")
	fs.Var(newEnumValue((*string)(&c.FailurePolicy)), "on-failure", "listener failure policy: exit, restart or ignore")
	fs.Var(newEnumValue((*string)(&c.Validator)), "validator", "identity validator: accept or lookup")
	fs.Var(newEnumValue((*string)(&c.IdentityStore)), "store", "identity store: memory, file or kubernetes")
	fs.StringVar(&c.StaticIdentities, "identities", c.StaticIdentities, "static identities id=user:pass,...")
	fs.StringVar(&c.IdentityFile, "identity-file", c.IdentityFile, "JSON identity file")
	fs.Var(newEnumValue((*string)(&c.Surface)), "surface", "toggle surface: terminal or headless")
	fs.Var(newEnumValue((*string)(&c.DeviceEvents)), "device-events", "device notification source: none or dbus")
	fs.Var(newEnumValue((*string)(&c.ControlTransport)), "control", "control transport: unix, zmq or none")
	fs.StringVar(&c.ControlSocket, "control-socket", c.ControlSocket, "unix control socket path")
	fs.StringVar(&c.HealthServerPort, "health-port", c.HealthServerPort, "health server port")
}

// Validate ensures configuration is coherent
func (c *Config) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid LISTEN_PORT: %d", c.ListenPort)
	}
	if c.DatagramPort < 0 || c.DatagramPort > 65535 {
		return fmt.Errorf("invalid DATAGRAM_PORT: %d", c.DatagramPort)
	}
	if c.RecvBufferSize < 2 {
		return fmt.Errorf("RECV_BUFFER_SIZE must be at least 2, got %d", c.RecvBufferSize)
	}
	if c.MaxTokenLength < 1 || c.MaxTokenLength > c.RecvBufferSize {
		return fmt.Errorf("MAX_TOKEN_LENGTH must be between 1 and RECV_BUFFER_SIZE (%d), got %d", c.RecvBufferSize, c.MaxTokenLength)
	}

	if err := oneOf("LISTENER_FAILURE_POLICY", string(c.FailurePolicy), FailureExit, FailureRestart, FailureIgnore); err != nil {
		return err
	}
	if err := oneOf("VALIDATOR", string(c.Validator), ValidatorAccept, ValidatorLookup); err != nil {
		return err
	}
	if err := oneOf("SURFACE", string(c.Surface), SurfaceTerminal, SurfaceHeadless); err != nil {
		return err
	}
	if err := oneOf("DEVICE_EVENTS", string(c.DeviceEvents), DeviceEventsNone, DeviceEventsDBus); err != nil {
		return err
	}
	if err := oneOf("CONTROL_TRANSPORT", string(c.ControlTransport), ControlNone, ControlUnix, ControlZMQ); err != nil {
		return err
	}

	// Store validation only matters for the lookup validator
	if c.Validator == ValidatorLookup {
		if err := oneOf("IDENTITY_STORE", string(c.IdentityStore), StoreMemory, StoreFile, StoreKubernetes); err != nil {
			return err
		}
		if c.IdentityStore == StoreFile && c.IdentityFile == "" {
			return fmt.Errorf("IDENTITY_FILE must be set when using the file identity store")
		}
	}

	return nil
}

// LogPath is the file logs go to, or "" for stdout. The terminal surface
// owns the tty while it runs, so interactive terminal runs default to a file
// next to the control socket.
func (c *Config) LogPath(interactive bool) string {
	if c.LogFile != "" {
		return c.LogFile
	}
	if interactive && c.Surface == SurfaceTerminal {
		return filepath.Join(runtimeDir(), "devicesim.log")
	}
	return ""
}

// Helper functions

func oneOf[T ~string](key, value string, allowed ...T) error {
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if string(a) == value {
			return nil
		}
		names = append(names, string(a))
	}
	return fmt.Errorf("unsupported %s: %s (supported: %s)", key, value, strings.Join(names, ", "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func determineStoreMode() StoreMode {
	// Explicit mode
	if mode := os.Getenv("IDENTITY_STORE"); mode != "" {
		switch strings.ToLower(mode) {
		case "file", "filesystem":
			return StoreFile
		case "kubernetes", "k8s", "secret":
			return StoreKubernetes
		case "memory", "static":
			return StoreMemory
		}
		return StoreMode(strings.ToLower(mode))
	}

	// Auto-detect based on what is configured
	if os.Getenv("IDENTITY_FILE") != "" {
		return StoreFile
	}
	if os.Getenv("STATIC_IDENTITIES") != "" {
		return StoreMemory
	}
	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount"); err == nil {
		return StoreKubernetes
	}
	return StoreMemory
}

func determineNamespace() string {
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		return ns
	}

	// Kubernetes downward API
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	// Read from service account (in-cluster)
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}

	return "default"
}

func defaultControlSocket() string {
	return filepath.Join(runtimeDir(), "devicesim.sock")
}

func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// enumValue adapts a string-typed enum field to pflag.Value.
type enumValue struct {
	p *string
}

func newEnumValue(p *string) *enumValue { return &enumValue{p: p} }

func (e *enumValue) String() string {
	if e.p == nil {
		return ""
	}
	return *e.p
}

func (e *enumValue) Set(s string) error {
	*e.p = strings.ToLower(s)
	return nil
}

func (e *enumValue) Type() string { return "string" }
