package store

import "github.com/stellarlinkco/eval-studio/internal/config"

func configFor(storageType, path string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Type: storageType, Path: path},
	}
}
