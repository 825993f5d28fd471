// Package config is the system-wide settings coordinator: HTTP/WebSocket
// transport, agent provider credentials, and telemetry backends.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Agent     *AgentConfig     `json:"agent"`
	Telemetry *TelemetryConfig `json:"telemetry"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AgentConfig holds the Azure OpenAI deployment the gateway talks to.
// Endpoint and APIKey are deployment secrets with no sensible defaults;
// an empty endpoint leaves the gateway serving error-content replies.
type AgentConfig struct {
	Endpoint   string        `json:"endpoint"`
	APIKey     string        `json:"-"` // env-only, never read from or written to config files
	Model      string        `json:"model"`
	APIVersion string        `json:"api_version"`
	RunTimeout time.Duration `json:"run_timeout"`
}

type TelemetryConfig struct {
	JaegerQueryURL string        `json:"jaeger_query_url"`
	OTLPEndpoint   string        `json:"otlp_endpoint"`
	ServiceName    string        `json:"service_name"`
	SpanStorePath  string        `json:"span_store_path"`
	QueryTimeout   time.Duration `json:"query_timeout"`
}

// DefaultConfig returns production-ready defaults: local collector
// endpoints, span store next to the binary, 2-minute agent budget
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:         8000,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Agent: &AgentConfig{
			Model:      "gpt-4o",
			APIVersion: "2024-02-01",
			RunTimeout: 120 * time.Second,
		},
		Telemetry: &TelemetryConfig{
			JaegerQueryURL: "http://localhost:16686/api/traces",
			OTLPEndpoint:   "",
			ServiceName:    "fhir-chat-agent",
			SpanStorePath:  "./fhirchat-spans.db",
			QueryTimeout:   5 * time.Second,
		},
	}
}

// Validate prevents invalid system configurations from reaching components
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}

	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket intervals must be positive")
	}

	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Agent == nil {
		return fmt.Errorf("agent configuration is required")
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent model cannot be empty")
	}

	if c.Agent.RunTimeout <= 0 {
		return fmt.Errorf("agent run timeout must be positive")
	}

	if c.Telemetry == nil {
		return fmt.Errorf("telemetry configuration is required")
	}

	if c.Telemetry.SpanStorePath == "" {
		return fmt.Errorf("span store path cannot be empty")
	}

	if c.Telemetry.QueryTimeout <= 0 {
		return fmt.Errorf("telemetry query timeout must be positive")
	}

	return nil
}

// LoadFromEnv overrides defaults from FHIRCHAT_* environment variables
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("FHIRCHAT_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}

	if host := os.Getenv("FHIRCHAT_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}

	if readTimeout := os.Getenv("FHIRCHAT_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}

	if writeTimeout := os.Getenv("FHIRCHAT_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if pingInterval := os.Getenv("FHIRCHAT_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}

	if bufferSize := os.Getenv("FHIRCHAT_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	// FUNCTIONAL DISCOVERY: Provider credentials are environment-only so
	// they never land in config files checked into deployment repos
	if endpoint := os.Getenv("FHIRCHAT_OPENAI_ENDPOINT"); endpoint != "" {
		config.Agent.Endpoint = endpoint
	}

	if apiKey := os.Getenv("FHIRCHAT_OPENAI_API_KEY"); apiKey != "" {
		config.Agent.APIKey = apiKey
	}

	if model := os.Getenv("FHIRCHAT_OPENAI_MODEL"); model != "" {
		config.Agent.Model = model
	}

	if apiVersion := os.Getenv("FHIRCHAT_OPENAI_API_VERSION"); apiVersion != "" {
		config.Agent.APIVersion = apiVersion
	}

	if runTimeout := os.Getenv("FHIRCHAT_AGENT_RUN_TIMEOUT"); runTimeout != "" {
		if timeout, err := time.ParseDuration(runTimeout); err == nil {
			config.Agent.RunTimeout = timeout
		}
	}

	if jaegerURL := os.Getenv("FHIRCHAT_JAEGER_QUERY_URL"); jaegerURL != "" {
		config.Telemetry.JaegerQueryURL = jaegerURL
	}

	if otlpEndpoint := os.Getenv("FHIRCHAT_OTLP_ENDPOINT"); otlpEndpoint != "" {
		config.Telemetry.OTLPEndpoint = otlpEndpoint
	}

	if serviceName := os.Getenv("FHIRCHAT_TELEMETRY_SERVICE_NAME"); serviceName != "" {
		config.Telemetry.ServiceName = serviceName
	}

	if spanStorePath := os.Getenv("FHIRCHAT_SPAN_STORE_PATH"); spanStorePath != "" {
		config.Telemetry.SpanStorePath = spanStorePath
	}

	if queryTimeout := os.Getenv("FHIRCHAT_TELEMETRY_QUERY_TIMEOUT"); queryTimeout != "" {
		if timeout, err := time.ParseDuration(queryTimeout); err == nil {
			config.Telemetry.QueryTimeout = timeout
		}
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration.
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle
// duration strings
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Agent     *AgentConfigFile     `json:"agent"`
	Telemetry *TelemetryConfigFile `json:"telemetry"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type AgentConfigFile struct {
	Endpoint   string `json:"endpoint"`
	Model      string `json:"model"`
	APIVersion string `json:"api_version"`
	RunTimeout string `json:"run_timeout"`
}

type TelemetryConfigFile struct {
	JaegerQueryURL string `json:"jaeger_query_url"`
	OTLPEndpoint   string `json:"otlp_endpoint"`
	ServiceName    string `json:"service_name"`
	SpanStorePath  string `json:"span_store_path"`
	QueryTimeout   string `json:"query_timeout"`
}

// LoadFromFile merges file settings over env-derived settings
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := LoadFromEnv()

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
		if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
		if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
		if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}

	if configFile.Agent != nil {
		if configFile.Agent.Endpoint != "" {
			config.Agent.Endpoint = configFile.Agent.Endpoint
		}
		if configFile.Agent.Model != "" {
			config.Agent.Model = configFile.Agent.Model
		}
		if configFile.Agent.APIVersion != "" {
			config.Agent.APIVersion = configFile.Agent.APIVersion
		}
		if timeout, err := time.ParseDuration(configFile.Agent.RunTimeout); err == nil {
			config.Agent.RunTimeout = timeout
		}
	}

	if configFile.Telemetry != nil {
		if configFile.Telemetry.JaegerQueryURL != "" {
			config.Telemetry.JaegerQueryURL = configFile.Telemetry.JaegerQueryURL
		}
		if configFile.Telemetry.OTLPEndpoint != "" {
			config.Telemetry.OTLPEndpoint = configFile.Telemetry.OTLPEndpoint
		}
		if configFile.Telemetry.ServiceName != "" {
			config.Telemetry.ServiceName = configFile.Telemetry.ServiceName
		}
		if configFile.Telemetry.SpanStorePath != "" {
			config.Telemetry.SpanStorePath = configFile.Telemetry.SpanStorePath
		}
		if timeout, err := time.ParseDuration(configFile.Telemetry.QueryTimeout); err == nil {
			config.Telemetry.QueryTimeout = timeout
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence applies configuration precedence:
// file > environment > defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
