package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Directory DirectoryConfig
	WebSocket WebSocketConfig
	Discovery DiscoveryConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	// Host is the address advertised in board identities.
	Host string `validate:"required,excludesall=:%"`
	Port int    `validate:"min=1,max=65535"`
}

type DirectoryConfig struct {
	Host string `validate:"required"`
	Port int    `validate:"min=1,max=65535"`
}

type WebSocketConfig struct {
	SendBufferSize int           `validate:"min=1"`
	MaxMessageSize int64         `validate:"min=1024"`
	DialTimeout    time.Duration `validate:"gt=0"`
	WriteWait      time.Duration `validate:"gt=0"`
	PongWait       time.Duration `validate:"gt=0"`
	PingPeriod     time.Duration `validate:"gt=0,ltfield=PongWait"`
}

type DiscoveryConfig struct {
	Enabled bool
	Service string        `validate:"required"`
	Timeout time.Duration `validate:"gt=0"`
}

type RedisConfig struct {
	Addr    string
	Channel string `validate:"required"`
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=text json"`
}

func Load() (*Config, error) {
	godotenv.Load()

	durations := map[string]time.Duration{}
	for key, def := range map[string]string{
		"DISCOVERY_TIMEOUT": "5s",
		"WS_DIAL_TIMEOUT":   "5s",
		"WS_WRITE_WAIT":     "10s",
		"WS_PONG_WAIT":      "60s",
		"WS_PING_PERIOD":    "54s",
	} {
		d, err := getEnvAsDuration(key, def)
		if err != nil {
			return nil, err
		}
		durations[key] = d
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("PEER_HOST", "127.0.0.1"),
			Port: getEnvAsInt("PEER_PORT", 8080),
		},
		Directory: DirectoryConfig{
			Host: getEnv("DIRECTORY_HOST", "127.0.0.1"),
			Port: getEnvAsInt("DIRECTORY_PORT", 3000),
		},
		WebSocket: WebSocketConfig{
			SendBufferSize: getEnvAsInt("WS_SEND_BUFFER", 256),
			MaxMessageSize: int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			DialTimeout:    durations["WS_DIAL_TIMEOUT"],
			WriteWait:      durations["WS_WRITE_WAIT"],
			PongWait:       durations["WS_PONG_WAIT"],
			PingPeriod:     durations["WS_PING_PERIOD"],
		},
		Discovery: DiscoveryConfig{
			Enabled: getEnvAsBool("DISCOVERY_ENABLED", false),
			Service: getEnv("DISCOVERY_SERVICE", "_whiteboard._tcp"),
			Timeout: durations["DISCOVERY_TIMEOUT"],
		},
		Redis: RedisConfig{
			Addr:    getEnv("REDIS_ADDR", ""),
			Channel: getEnv("REDIS_CHANNEL", "whiteboard:sharing"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// PeerAddress is the "host:port" other peers reach this peer on.
func (c *Config) PeerAddress() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func (c *Config) DirectoryAddress() string {
	return c.Directory.Host + ":" + strconv.Itoa(c.Directory.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
