// Package config は config/config.yaml と .env の読み込みを担当する。
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// OrchestratorConfig は発見パイプラインの動作設定。
type OrchestratorConfig struct {
	StageConcurrencyLimit      int      `yaml:"stage_concurrency_limit"`
	PerBackendConcurrencyLimit int      `yaml:"per_backend_concurrency_limit"`
	PerToolTimeoutSec          int      `yaml:"per_tool_timeout_seconds"`
	MaxRetryAttempts           int      `yaml:"max_retry_attempts"`
	StageDeadlineSec           int      `yaml:"stage_deadline_seconds"`
	SourcePriorityRanking      []string `yaml:"source_priority_ranking"`
	MergeSortKey               string   `yaml:"merge_sort_key"`
	IncludeWildcards           bool     `yaml:"include_wildcards"`
}

// DNSConfig は DNS 解決ソースの設定。
type DNSConfig struct {
	Nameservers []string `yaml:"nameservers"` // "ip:port" 形式
}

// AppConfig は config/config.yaml の統合設定構造。
type AppConfig struct {
	Orchestrator       OrchestratorConfig `yaml:"orchestrator"`
	DNS                DNSConfig          `yaml:"dns"`
	Blacklist          []string           `yaml:"blacklist"`
	HackerTargetAPIKey string             `yaml:"hackertarget_api_key"` // ${VAR} 展開可
}

// applyDefaults はゼロ値のフィールドにデフォルト値を適用する。
func (c *AppConfig) applyDefaults() {
	o := &c.Orchestrator
	if o.StageConcurrencyLimit == 0 {
		o.StageConcurrencyLimit = 50 // DNS 解決等の細粒度 fan-out 向け
	}
	if o.PerBackendConcurrencyLimit == 0 {
		o.PerBackendConcurrencyLimit = 4
	}
	if o.MaxRetryAttempts == 0 {
		o.MaxRetryAttempts = 3
	}
	if o.StageDeadlineSec == 0 {
		o.StageDeadlineSec = 600
	}
	if o.MergeSortKey == "" {
		o.MergeSortKey = "depth"
	}
	if len(o.SourcePriorityRanking) == 0 {
		// 能動検証データ > 受動収集データ
		o.SourcePriorityRanking = []string{"dns", "httpx", "crtsh", "hackertarget", "gau", "wayback"}
	}
	if len(c.DNS.Nameservers) == 0 {
		c.DNS.Nameservers = []string{"1.1.1.1:53", "8.8.8.8:53", "8.8.4.4:53"}
	}
}

// LoadEnv は .env があれば読み込む。なくてもエラーにしない。
func LoadEnv() {
	_ = godotenv.Load()
}

// Load は config/config.yaml を読み込む。
// ${VAR} 環境変数を展開する。ファイルが存在しない場合はデフォルトの
// AppConfig を返す。
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := &AppConfig{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.HackerTargetAPIKey = expandEnvString(cfg.HackerTargetAPIKey)
	cfg.applyDefaults()
	return &cfg, nil
}

// expandEnvString は文字列内の ${VAR} をホスト環境変数で展開する。
func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
