package storage

import (
	"fmt"

	"github.com/bru02/zhm/server/internal/config"
)

// New creates the Backend selected by cfg.Backend.
func New(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "file":
		f, err := NewFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "sqlite":
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		return NewRedis(cfg.Redis.Addr, cfg.Redis.Password(), cfg.Redis.DB), nil
	case "s3":
		s, err := NewS3(cfg.S3.Endpoint, cfg.S3.AccessKey(), cfg.S3.SecretKey(), cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.UseSSL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
