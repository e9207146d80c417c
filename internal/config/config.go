package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type HTTPServer struct {
	Host string
	Port string
	// ReadOnly rejects every mutating request with 503.
	ReadOnly bool
}

type RedisCache struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Directory struct {
	Backend   string
	TxRetries int
}

type Game struct {
	CodeAttempts int
}

type Config struct {
	HTTP      HTTPServer
	Redis     RedisCache
	Postgres  Postgres
	Directory Directory
	Game      Game
}

const logtag = "[config]"

func Load() *Config {
	configPath := flag.String("config", "", "path env file")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			log.Fatalf("%s err loading env from file : %v", logtag, err)
		}
		log.Printf("%s using env from : %s", logtag, *configPath)
	} else {
		log.Printf("%s using env from .env", logtag)
		_ = godotenv.Load()
	}

	cfg := FromEnv()
	log.Printf("%s backend config : %+v\n", logtag, cfg.redacted())
	return cfg
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		HTTP:      *newHTTP(),
		Redis:     *newRedis(),
		Postgres:  *newPostgres(),
		Directory: *newDirectory(),
		Game:      *newGame(),
	}
}

func (c Config) redacted() Config {
	if c.Redis.Password != "" {
		c.Redis.Password = "***"
	}
	if c.Postgres.Password != "" {
		c.Postgres.Password = "***"
	}
	return c
}

func newHTTP() *HTTPServer {
	return &HTTPServer{
		Port:     getenv("HTTP_PORT", "8080"),
		Host:     getenv("HTTP_HOST", "localhost"),
		ReadOnly: getenvBool("HTTP_READ_ONLY", false),
	}
}

func newRedis() *RedisCache {
	return &RedisCache{
		Port:     getenv("REDIS_PORT", "6379"),
		Host:     getenv("REDIS_HOST", "redis"),
		Password: getenv("REDIS_PASSWORD", ""),
		DB:       getenvInt("REDIS_DB", 0),
	}
}

func newPostgres() *Postgres {
	return &Postgres{
		Host:     getenv("DB_HOST", "localhost"),
		Port:     getenv("DB_PORT", "5432"),
		User:     getenv("DB_USER", "admin"),
		Password: getenv("DB_PASSWORD", "shared"),
		DBName:   getenv("DB_NAME", "judgement"),
		SSLMode:  getenv("DB_SSLMODE", "disable"),
	}
}

func newDirectory() *Directory {
	backend := getenv("DIRECTORY_BACKEND", BackendRedis)
	switch backend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		log.Printf("%s unknown DIRECTORY_BACKEND %q, falling back to %s", logtag, backend, BackendRedis)
		backend = BackendRedis
	}
	return &Directory{
		Backend:   backend,
		TxRetries: getenvInt("DIRECTORY_TX_RETRIES", 16),
	}
}

func newGame() *Game {
	return &Game{
		CodeAttempts: getenvInt("GAME_CODE_ATTEMPTS", 10),
	}
}

func getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		fmt.Printf("%s %s undefined. Using default value %s\n", logtag, key, defaultValue)
		return defaultValue
	}
	fmt.Printf("%s %s = %s\n", logtag, key, val)
	return val
}

func getenvInt(key string, defaultValue int) int {
	raw := getenv(key, strconv.Itoa(defaultValue))
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("%s %s = %q is not a number. Using default value %d", logtag, key, raw, defaultValue)
		return defaultValue
	}
	return val
}

func getenvBool(key string, defaultValue bool) bool {
	raw := getenv(key, strconv.FormatBool(defaultValue))
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("%s %s = %q is not a bool. Using default value %t", logtag, key, raw, defaultValue)
		return defaultValue
	}
	return val
}
