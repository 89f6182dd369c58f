package storage

import "testing"

func TestDetectStorageType(t *testing.T) {
	tests := []struct {
		endpoint string
		want     StorageType
	}{
		{"https://acct.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.us-west-2.amazonaws.com", StorageTypeS3},
		{"", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
	}

	for _, tt := range tests {
		if got := DetectStorageType(tt.endpoint); got != tt.want {
			t.Errorf("DetectStorageType(%q) = %s, want %s", tt.endpoint, got, tt.want)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"https://minio.local:9000/":      "minio.local:9000",
		"http://minio.local:9000/bucket": "minio.local:9000",
		"minio.local":                    "minio.local",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewS3Storage_PublicURL(t *testing.T) {
	s, err := NewS3Storage(&S3Config{
		Type:      StorageTypeS3Compatible,
		Endpoint:  "http://localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "datasets",
	})
	if err != nil {
		t.Fatalf("NewS3Storage: %v", err)
	}
	if got := s.GetURL("repos/alice/set/croissant.json"); got != "http://localhost:9000/datasets/repos/alice/set/croissant.json" {
		t.Errorf("GetURL() = %q", got)
	}

	if _, err := NewS3Storage(&S3Config{}); err == nil {
		t.Error("expected error without a bucket")
	}
}
