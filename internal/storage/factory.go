package storage

import "strings"

// NewStorage creates an ObjectStorage from cfg, detecting the service type
// from the endpoint when cfg.Type is empty.
func NewStorage(cfg *S3Config) (ObjectStorage, error) {
	if cfg.Type == "" {
		cfg.Type = DetectStorageType(cfg.Endpoint)
	}
	return NewS3Storage(cfg)
}

// DetectStorageType guesses the service flavour from its endpoint.
func DetectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case endpoint == "" || strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
