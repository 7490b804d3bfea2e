// Package config loads the forwarder configuration: defaults, then an
// optional YAML file with ${VAR} expansion, then EVFWD_* environment
// overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"evfwd/internal/batch"
	"evfwd/internal/upload"
)

const (
	ModeLive      = "live"
	ModeSmokeTest = "smoke-test"

	ClientSegmentio = "segmentio"
	ClientConfluent = "confluent"

	envPrefix = "EVFWD_"
)

// Duration accepts Go duration strings ("250ms", "30s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Mode        string `yaml:"mode"`
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Stream struct {
		Client   string   `yaml:"client"`
		Brokers  []string `yaml:"brokers"`
		Topic    string   `yaml:"topic"`
		GroupID  string   `yaml:"group_id"`
		ClientID string   `yaml:"client_id"`
	} `yaml:"stream"`
	Ingestion struct {
		BaseURL   string   `yaml:"base_url"`
		APIKey    string   `yaml:"api_key"`
		APISecret string   `yaml:"api_secret"`
		Timeout   Duration `yaml:"timeout"`
	} `yaml:"ingestion"`
	Pipeline struct {
		Workers  int      `yaml:"workers"`
		BulkSize int      `yaml:"bulk_size"`
		BulkWait Duration `yaml:"bulk_wait"`
	} `yaml:"pipeline"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Results struct {
		FileDir     string `yaml:"file_dir"`
		KafkaTopic  string `yaml:"kafka_topic"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"results"`
	DeadLetter struct {
		Dir string `yaml:"dir"`
	} `yaml:"dead_letter"`
}

// Default uses consumer group "test", client id "hostname" and the
// development workspace.
func Default() Config {
	var c Config
	c.Mode = ModeLive
	c.Environment = string(batch.Development)
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Stream.Client = ClientSegmentio
	c.Stream.GroupID = "test"
	c.Stream.ClientID = "hostname"
	c.Ingestion.BaseURL = upload.DefaultBaseURL
	c.Ingestion.Timeout = Duration(30 * time.Second)
	c.Pipeline.Workers = 1
	c.Pipeline.BulkSize = 1
	c.Pipeline.BulkWait = Duration(time.Second)
	c.Metrics.Addr = ":8080"
	return c
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		expanded := os.ExpandEnv(string(file))
		if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return c, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return errors.Wrapf(err, "%s%s", envPrefix, key)
			}
			*dst = n
		}
		return nil
	}
	dur := func(key string, dst *Duration) error {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return errors.Wrapf(err, "%s%s", envPrefix, key)
			}
			*dst = Duration(d)
		}
		return nil
	}

	str("MODE", &c.Mode)
	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STREAM_CLIENT", &c.Stream.Client)
	if v, ok := lookup(envPrefix + "STREAM_BROKERS"); ok {
		c.Stream.Brokers = splitList(v)
	}
	str("STREAM_TOPIC", &c.Stream.Topic)
	str("STREAM_GROUP_ID", &c.Stream.GroupID)
	str("STREAM_CLIENT_ID", &c.Stream.ClientID)
	str("INGESTION_BASE_URL", &c.Ingestion.BaseURL)
	str("INGESTION_API_KEY", &c.Ingestion.APIKey)
	str("INGESTION_API_SECRET", &c.Ingestion.APISecret)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("RESULTS_FILE_DIR", &c.Results.FileDir)
	str("RESULTS_KAFKA_TOPIC", &c.Results.KafkaTopic)
	str("RESULTS_POSTGRES_DSN", &c.Results.PostgresDSN)
	str("DEAD_LETTER_DIR", &c.DeadLetter.Dir)

	if err := dur("INGESTION_TIMEOUT", &c.Ingestion.Timeout); err != nil {
		return err
	}
	if err := num("PIPELINE_WORKERS", &c.Pipeline.Workers); err != nil {
		return err
	}
	if err := num("PIPELINE_BULK_SIZE", &c.Pipeline.BulkSize); err != nil {
		return err
	}
	return dur("PIPELINE_BULK_WAIT", &c.Pipeline.BulkWait)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeLive, ModeSmokeTest:
	default:
		return fmt.Errorf("mode must be %s or %s, got %q", ModeLive, ModeSmokeTest, c.Mode)
	}
	if _, err := batch.ParseEnvironment(c.Environment); err != nil {
		return err
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.BulkSize < 1 {
		return fmt.Errorf("pipeline.bulk_size must be >= 1, got %d", c.Pipeline.BulkSize)
	}
	switch c.Stream.Client {
	case ClientSegmentio, ClientConfluent:
	default:
		return fmt.Errorf("stream.client must be %s or %s, got %q", ClientSegmentio, ClientConfluent, c.Stream.Client)
	}
	if c.Mode == ModeLive {
		if len(c.Stream.Brokers) == 0 {
			return fmt.Errorf("stream.brokers is required in live mode")
		}
		if c.Stream.Topic == "" {
			return fmt.Errorf("stream.topic is required in live mode")
		}
	}
	return nil
}

// Env returns the validated environment tag.
func (c Config) Env() batch.Environment {
	return batch.Environment(c.Environment)
}
