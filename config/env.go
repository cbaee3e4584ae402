package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env holds credentials that stay out of the study file.
type Env struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Secure    bool

	ResultsDSN string
}

// LoadEnv loads the dotenv files, if present, then reads the process
// environment. Variables already set in the environment win.
func LoadEnv(files ...string) (*Env, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	env := &Env{
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		ResultsDSN:    os.Getenv("RESULTS_DSN"),
	}
	var err error
	if env.RedisDB, err = strconv.Atoi(getenv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB value: %w", err)
	}
	if env.S3Secure, err = strconv.ParseBool(getenv("S3_SECURE", "false")); err != nil {
		return nil, fmt.Errorf("invalid S3_SECURE value: %w", err)
	}
	return env, nil
}

// RequireS3 reports the first missing S3 variable.
func (e *Env) RequireS3() error {
	for _, v := range []struct{ name, value string }{
		{"S3_ENDPOINT", e.S3Endpoint},
		{"S3_ACCESS_KEY", e.S3AccessKey},
		{"S3_SECRET_KEY", e.S3SecretKey},
		{"S3_BUCKET", e.S3Bucket},
	} {
		if v.value == "" {
			return fmt.Errorf("environment variable %s is not set", v.name)
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
