package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chatlens/sentiment-worker/internal/config"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
predict_url: http://predictor:8080/predict
brokers:
  - localhost:9092
watch_channels:
  - C01
  - C02
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SourceTopic != "social-media-topic" {
		t.Errorf("source_topic default: got %q", cfg.SourceTopic)
	}
	if cfg.ResultTopic != "user-sentiment-topic" {
		t.Errorf("result_topic default: got %q", cfg.ResultTopic)
	}
	if cfg.DLQTopic != "social-media-topic.dlq" {
		t.Errorf("dlq_topic should derive from source topic, got %q", cfg.DLQTopic)
	}
	if cfg.GroupID != "bot-processor-group" {
		t.Errorf("group_id default: got %q", cfg.GroupID)
	}
	if cfg.TargetLanguage != "en" {
		t.Errorf("target_language default: got %q", cfg.TargetLanguage)
	}
	if cfg.CallTimeout != 10*time.Second {
		t.Errorf("call_timeout default: got %v", cfg.CallTimeout)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.MaxInflight != 8 || cfg.BatchSize != 100 {
		t.Errorf("retry/inflight/batch defaults: %d/%d/%d", cfg.RetryMaxAttempts, cfg.MaxInflight, cfg.BatchSize)
	}
	if cfg.Seen.Capacity != 10000 || cfg.Seen.TTL != 7*24*time.Hour {
		t.Errorf("seen defaults: %d/%v", cfg.Seen.Capacity, cfg.Seen.TTL)
	}
	if cfg.UsesMSK() {
		t.Error("static brokers must not trigger MSK discovery")
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
predict_url: http://predictor:8080/predict
cluster_arn: arn:aws:kafka:ap-southeast-1:1:cluster/chat/x
secret_name: msk/scram
source_topic: chat-events
dlq_topic: chat-events.dead
group_id: sentiment-workers
target_language: th
max_inflight: 4
watch_channels: [C09]
seen:
  type: memory
  capacity: 500
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SourceTopic != "chat-events" || cfg.DLQTopic != "chat-events.dead" {
		t.Errorf("topics: %q / %q", cfg.SourceTopic, cfg.DLQTopic)
	}
	if cfg.GroupID != "sentiment-workers" || cfg.TargetLanguage != "th" || cfg.MaxInflight != 4 {
		t.Errorf("overrides lost: %+v", cfg)
	}
	if cfg.Seen.Type != "memory" || cfg.Seen.Capacity != 500 {
		t.Errorf("seen overrides lost: %+v", cfg.Seen)
	}
	if !cfg.UsesMSK() {
		t.Error("no brokers configured, MSK discovery expected")
	}
}

func TestLoadMissingFileFallsBackToDefaultsAndFailsValidation(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "predict_url") {
		t.Fatalf("expected predict_url validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			name: "missing predict url",
			yaml: `
brokers: [localhost:9092]
watch_channels: [C01]
`,
			wantSub: "predict_url",
		},
		{
			name: "no brokers and incomplete MSK pair",
			yaml: `
predict_url: http://p/predict
cluster_arn: arn:aws:kafka:ap-southeast-1:1:cluster/chat/x
watch_channels: [C01]
`,
			wantSub: "cluster_arn and secret_name",
		},
		{
			name: "empty watch list",
			yaml: `
predict_url: http://p/predict
brokers: [localhost:9092]
`,
			wantSub: "watch_channels",
		},
		{
			name: "bad target language",
			yaml: `
predict_url: http://p/predict
brokers: [localhost:9092]
watch_channels: [C01]
target_language: "!!"
`,
			wantSub: "target_language",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("expected error containing %q, got %v", tc.wantSub, err)
			}
		})
	}
}
