package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv            string `env:"APP_ENV" envDefault:"dev"`
	APIAddr           string `env:"API_ADDR" envDefault:":8080"`
	RedisAddr         string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RunnerURL         string `env:"RUNNER_URL,notEmpty"`
	RunnerToken       string `env:"RUNNER_TOKEN,notEmpty"`
	RunnerTimeoutSec  int    `env:"RUNNER_TIMEOUT_SEC" envDefault:"300"`
	PublicBaseURL     string `env:"PUBLIC_BASE_URL"`
	JobTTLHours       int    `env:"JOB_TTL_HOURS" envDefault:"72"`
	MaxUploadMB       int64  `env:"MAX_UPLOAD_MB" envDefault:"25"`
	MaxConcurrentJobs int64  `env:"MAX_CONCURRENT_JOBS" envDefault:"8"`
	R2Endpoint        string `env:"R2_ENDPOINT,notEmpty"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID,notEmpty"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY,notEmpty"`
	R2Bucket          string `env:"R2_BUCKET,notEmpty"`
}

func Load() Config {
	loadDotEnv()
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}

func (c Config) JobTTL() time.Duration        { return time.Duration(c.JobTTLHours) * time.Hour }
func (c Config) MaxUploadBytes() int64        { return c.MaxUploadMB << 20 }
func (c Config) RunnerTimeout() time.Duration { return time.Duration(c.RunnerTimeoutSec) * time.Second }

// loadDotEnv walks up from the working directory looking for a .env file,
// so the binary can be started from any subdirectory during development.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
