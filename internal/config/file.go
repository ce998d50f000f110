package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML file. Secrets are never read from it.
//
//	max_preview_lines: 7
//	max_chars: 400
//	fetch_timeout: 5s
//	redmine:
//	  convert_html_to_markdown: true
//	outline:
//	  expected_domain: wiki.example.com
//	  max_chars: 300
type FileConfig struct {
	MaxPreviewLines int           `yaml:"max_preview_lines"`
	MaxChars        int           `yaml:"max_chars"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	AdapterRPS      float64       `yaml:"adapter_rps"`
	UserAgent       string        `yaml:"user_agent"`

	Redmine struct {
		ConvertHTMLToMarkdown bool `yaml:"convert_html_to_markdown"`
		SkipFields            bool `yaml:"skip_fields"`
		IgnoreCustomFields    bool `yaml:"ignore_custom_fields"`
	} `yaml:"redmine"`

	Outline struct {
		ExpectedDomain  string `yaml:"expected_domain"`
		MaxPreviewLines int    `yaml:"max_preview_lines"`
		MaxChars        int    `yaml:"max_chars"`
	} `yaml:"outline"`
}

// LoadFile reads path; an empty path yields an empty FileConfig.
func LoadFile(path string) (*FileConfig, error) {
	fc := &FileConfig{}
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	return fc, nil
}
