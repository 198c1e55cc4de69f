package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Adapter names understood by the annotator registry.
const (
	AdapterHTTP      = "http"
	AdapterMock      = "mock"
	AdapterMockError = "mock-error"
)

// Config holds everything a run of the harness needs.
type Config struct {
	Annotator        AnnotatorConfig   `yaml:"annotator"`
	Dataset          DatasetConfig     `yaml:"dataset"`
	Output           OutputConfig      `yaml:"output"`
	Smoke            SmokeConfig       `yaml:"smoke"`
	ObjectStore      ObjectStoreConfig `yaml:"object_store"`
	FailFast         bool              `yaml:"fail_fast"`
	FuzzyMaxDistance int               `yaml:"fuzzy_max_distance"`
	ShowProgress     bool              `yaml:"show_progress"`
	LogLevel         string            `yaml:"log_level"`
}

// AnnotatorConfig describes the annotation endpoint and how to reach it.
type AnnotatorConfig struct {
	Adapter    string `yaml:"adapter"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIPath    string `yaml:"api_path"`
	VarName    string `yaml:"api_varname"`
	TimeoutSec int    `yaml:"timeout_secs"` // 0 waits forever
	// MockVocabulary is the term list the mock adapter recognises.
	MockVocabulary []string `yaml:"mock_vocabulary"`
}

// URL returns the endpoint the HTTP adapter posts to.
func (a AnnotatorConfig) URL() string {
	return fmt.Sprintf("http://%s:%d/%s", a.Host, a.Port, strings.TrimPrefix(a.APIPath, "/"))
}

// Timeout converts TimeoutSec to a duration.
func (a AnnotatorConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

// DatasetConfig locates the dataset archive and the directories inside it.
type DatasetConfig struct {
	ArchivePath string `yaml:"archive_path"`
	ExtractDir  string `yaml:"extract_dir"`
	MetadataDir string `yaml:"metadata_dir"`
	TextDir     string `yaml:"text_dir"`
}

// OutputConfig names the output archive and the JSON entry inside it.
// ReportFormat selects how the evaluation report is printed.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	JSONName     string `yaml:"json_name"`
	ArchiveName  string `yaml:"archive_name"`
	ReportFormat string `yaml:"report_format"`
}

// Report formats.
const (
	ReportText = "text"
	ReportJSON = "json"
)

// SmokeConfig drives the single-text annotation check run ahead of the dataset.
type SmokeConfig struct {
	Enabled        bool   `yaml:"enabled"`
	SampleText     string `yaml:"sample_text"`
	SampleTextFile string `yaml:"sample_text_file"`
	ReferencePath  string `yaml:"reference_path"`
}

// ObjectStoreConfig configures the optional MinIO bucket for datasets and artifacts.
type ObjectStoreConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	BucketName      string `yaml:"bucket_name"`
	UseSSL          bool   `yaml:"use_ssl"`
	DatasetObject   string `yaml:"dataset_object"`
	UploadArtifacts bool   `yaml:"upload_artifacts"`
}

// Defaults returns a Config matching the stock local setup.
func Defaults() Config {
	return Config{
		Annotator: AnnotatorConfig{
			Adapter: AdapterHTTP,
			Host:    "localhost",
			Port:    8000,
			APIPath: "process_text",
			VarName: "content",
			MockVocabulary: []string{
				"lvef", "edema", "fatigue", "dyspnea", "heart failure", "hypertension",
			},
		},
		Dataset: DatasetConfig{
			ArchivePath: "assets/HFCCR_v2.zip",
			ExtractDir:  "assets/tmp",
			MetadataDir: "metadata",
			TextDir:     "txt",
		},
		Output: OutputConfig{
			Dir:          "artifacts",
			JSONName:     "output.json",
			ArchiveName:  "test.json.zip",
			ReportFormat: ReportText,
		},
		FuzzyMaxDistance: 1,
		ShowProgress:     true,
		LogLevel:         "info",
	}
}

// Load reads the configuration with LoadUnvalidated and validates it.
func Load(path string) (Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadUnvalidated reads an optional YAML file over the defaults and applies
// environment overrides. An empty path falls back to ANNOTEVAL_CONFIG, and
// skips the file when that is unset too. Callers that layer further overrides
// on top must call Validate themselves.
func LoadUnvalidated(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("ANNOTEVAL_CONFIG")
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ANNOTEVAL_ADAPTER"); v != "" {
		c.Annotator.Adapter = v
	}
	if v := os.Getenv("ANNOTEVAL_HOST"); v != "" {
		c.Annotator.Host = v
	}
	if v := os.Getenv("ANNOTEVAL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ANNOTEVAL_PORT %q: %w", v, err)
		}
		c.Annotator.Port = port
	}
	if v := os.Getenv("ANNOTEVAL_API_PATH"); v != "" {
		c.Annotator.APIPath = v
	}
	if v := os.Getenv("ANNOTEVAL_DATASET"); v != "" {
		c.Dataset.ArchivePath = v
	}

	// Same variables the object store always read; setting an endpoint turns it on.
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		c.ObjectStore.Enabled = true
		c.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY_ID"); v != "" {
		c.ObjectStore.AccessKeyID = v
	}
	if v := os.Getenv("MINIO_SECRET_ACCESS_KEY"); v != "" {
		c.ObjectStore.SecretAccessKey = v
	}
	if v := os.Getenv("MINIO_BUCKET_NAME"); v != "" {
		c.ObjectStore.BucketName = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		useSSL, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("MINIO_USE_SSL is not a valid boolean, defaulting to false", "value", v)
			useSSL = false
		}
		c.ObjectStore.UseSSL = useSSL
	}
	return nil
}

// Validate checks that required fields are present and values are usable.
func (c *Config) Validate() error {
	switch c.Annotator.Adapter {
	case AdapterHTTP:
		if c.Annotator.Host == "" {
			return errors.New("annotator.host is required")
		}
		if c.Annotator.Port < 1 || c.Annotator.Port > 65535 {
			return fmt.Errorf("annotator.port %d out of range", c.Annotator.Port)
		}
		if c.Annotator.VarName == "" {
			return errors.New("annotator.api_varname is required")
		}
	case AdapterMock, AdapterMockError:
	default:
		return fmt.Errorf("unknown annotator adapter %q", c.Annotator.Adapter)
	}
	if c.Annotator.TimeoutSec < 0 {
		return errors.New("annotator.timeout_secs must not be negative")
	}

	if c.Dataset.ArchivePath == "" || c.Dataset.ExtractDir == "" {
		return errors.New("dataset.archive_path and dataset.extract_dir are required")
	}
	if c.Dataset.MetadataDir == "" || c.Dataset.TextDir == "" {
		return errors.New("dataset.metadata_dir and dataset.text_dir are required")
	}
	if c.Output.Dir == "" || c.Output.JSONName == "" || c.Output.ArchiveName == "" {
		return errors.New("output.dir, output.json_name and output.archive_name are required")
	}
	switch c.Output.ReportFormat {
	case ReportText, ReportJSON:
	default:
		return fmt.Errorf("invalid output.report_format %q", c.Output.ReportFormat)
	}

	if c.FuzzyMaxDistance < 0 {
		return errors.New("fuzzy_max_distance must not be negative")
	}

	if c.Smoke.Enabled {
		if c.Smoke.ReferencePath == "" {
			return errors.New("smoke.reference_path is required when the smoke check is enabled")
		}
		if c.Smoke.SampleText == "" && c.Smoke.SampleTextFile == "" {
			return errors.New("smoke.sample_text or smoke.sample_text_file is required when the smoke check is enabled")
		}
	}

	if c.ObjectStore.Enabled {
		store := c.ObjectStore
		if store.Endpoint == "" || store.AccessKeyID == "" || store.SecretAccessKey == "" || store.BucketName == "" {
			return errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY, and MINIO_BUCKET_NAME must be set")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Text returns the smoke-check text, reading it from disk when configured.
func (s SmokeConfig) Text() (string, error) {
	if s.SampleText != "" {
		return s.SampleText, nil
	}
	data, err := os.ReadFile(s.SampleTextFile)
	if err != nil {
		return "", fmt.Errorf("reading smoke sample text: %w", err)
	}
	return string(data), nil
}
