package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iceinvein/notari-go/internal/platform/env"
)

type Config struct {
	Endpoint         string
	AccessKey        string
	SecretKey        string
	Region           string
	UseSSL           bool
	BucketRecordings string
	BucketManifests  string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("NOTARI_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:         env.String("NOTARI_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:        env.String("NOTARI_MINIO_ACCESS_KEY", "notari"),
		SecretKey:        env.String("NOTARI_MINIO_SECRET_KEY", "notariminio"),
		Region:           env.String("NOTARI_MINIO_REGION", "us-east-1"),
		UseSSL:           useSSL,
		BucketRecordings: env.String("NOTARI_MINIO_BUCKET_RECORDINGS", "recordings"),
		BucketManifests:  env.String("NOTARI_MINIO_BUCKET_MANIFESTS", "manifests"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketRecordings) == "" {
		return errors.New("recordings bucket is required")
	}
	if strings.TrimSpace(c.BucketManifests) == "" {
		return errors.New("manifests bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
