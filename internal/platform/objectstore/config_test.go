package objectstore

import "testing"

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.BucketPackets != "research-packets" {
		t.Fatalf("BucketPackets=%q, want research-packets", cfg.BucketPackets)
	}
}

func TestConfigValidate_RejectsScheme(t *testing.T) {
	cfg := Config{
		Endpoint:      "http://localhost:9000",
		AccessKey:     "a",
		SecretKey:     "b",
		Region:        "us-east-1",
		BucketPackets: "p",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestNewJSONBucket_RequiresClient(t *testing.T) {
	if _, err := NewJSONBucket(nil, "p"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
