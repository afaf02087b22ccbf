package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Index      IndexConfig
	Generation GenerationConfig
	LLM        LLMConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type StorageConfig struct {
	UploadDir string
}

type IndexConfig struct {
	RetrievalChunkSize    int
	RetrievalChunkOverlap int
	CitationChunkSize     int
	CitationChunkOverlap  int
	AnswerTopK            int
	CitationTopM          int
	MinOverlap            int
}

type GenerationConfig struct {
	QuestionTimeoutSec int
}

type LLMConfig struct {
	Enabled     bool
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/ddq-agent")

	viper.SetEnvPrefix("DDQ_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 52428800)

	viper.SetDefault("sqlite.path", "./data/ddqagent.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("storage.uploadDir", "./data/uploads")

	viper.SetDefault("index.retrievalChunkSize", 1000)
	viper.SetDefault("index.retrievalChunkOverlap", 100)
	viper.SetDefault("index.citationChunkSize", 300)
	viper.SetDefault("index.citationChunkOverlap", 30)
	viper.SetDefault("index.answerTopK", 5)
	viper.SetDefault("index.citationTopM", 3)
	viper.SetDefault("index.minOverlap", 1)

	viper.SetDefault("generation.questionTimeoutSec", 30)

	viper.SetDefault("llm.enabled", false)
	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
