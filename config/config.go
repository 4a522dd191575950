// Copyright 2018 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/prometheus/snmp_ifpoller/snmp"
)

// LoadFile reads and validates a configuration file. With expandEnv set,
// ${VAR} references are replaced from the environment before parsing.
func LoadFile(filename string, expandEnv bool) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if expandEnv {
		content = []byte(os.ExpandEnv(string(content)))
	}
	cfg := &Config{}
	err = yaml.UnmarshalStrict(content, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return cfg, nil
}

// LoadEnvFiles loads variables from .env files into the environment.
// Variables that are already set are left untouched.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	return godotenv.Load(files...)
}

const (
	SinkInfluxDB = "influxdb"
	SinkRedis    = "redis"
	SinkAMQP     = "amqp"
)

var (
	DefaultAuth = Auth{
		Community: "public",
	}
	DefaultWalkParams = WalkParams{
		RootOID:        "1.3.6.1",
		NonRepeaters:   snmp.DefaultNonRepeaters,
		MaxRepetitions: snmp.DefaultMaxRepetitions,
		Timeout:        3 * time.Second,
		TickInterval:   100 * time.Millisecond,
	}
	DefaultInfluxDBConfig = InfluxDBConfig{
		Timeout: 10 * time.Second,
	}
	DefaultRedisConfig = RedisConfig{
		Network: "tcp",
		Address: "localhost:6379",
		Stream:  "snmp",
		MaxLen:  10000,
	}
	DefaultAMQPConfig = AMQPConfig{
		RoutingKey: "snmp",
	}
	DefaultSinkConfig = SinkConfig{
		Type:        SinkInfluxDB,
		Measurement: "snmp",
		Backdate:    10 * time.Second,
		InfluxDB:    DefaultInfluxDBConfig,
		Redis:       DefaultRedisConfig,
		AMQP:        DefaultAMQPConfig,
	}
	DefaultConfig = Config{
		Auth: DefaultAuth,
		Walk: DefaultWalkParams,
		Sink: DefaultSinkConfig,
	}
)

// Config for the snmp_ifpoller.
type Config struct {
	// Agent address as host[:port], optionally prefixed with udp://.
	Target        string     `yaml:"target"`
	SourceAddress string     `yaml:"source_address,omitempty"`
	DeviceName    string     `yaml:"device_name,omitempty"`
	Auth          Auth       `yaml:"auth,omitempty"`
	Walk          WalkParams `yaml:"walk,omitempty"`
	Sink          SinkConfig `yaml:"sink,omitempty"`
}

func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultConfig
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if c.Target == "" {
		return fmt.Errorf("target is missing")
	}
	return c.Sink.validate()
}

// DecryptSecrets replaces every aesgcm: secret in c with its plaintext.
func (c *Config) DecryptSecrets(passphrase string) error {
	secrets := []struct {
		name string
		s    *Secret
	}{
		{"auth.community", &c.Auth.Community},
		{"sink.influxdb.password", &c.Sink.InfluxDB.Password},
		{"sink.redis.password", &c.Sink.Redis.Password},
		{"sink.amqp.url", &c.Sink.AMQP.URL},
	}
	for _, sec := range secrets {
		plain, err := sec.s.Reveal(passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", sec.name, err)
		}
		*sec.s = Secret(plain)
	}
	return nil
}

type Auth struct {
	Community Secret `yaml:"community,omitempty"`
}

type WalkParams struct {
	RootOID        string        `yaml:"root_oid,omitempty"`
	NonRepeaters   uint8         `yaml:"non_repeaters,omitempty"`
	MaxRepetitions uint32        `yaml:"max_repetitions,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	TickInterval   time.Duration `yaml:"tick_interval,omitempty"`
	// Accept agents that return OIDs out of order, at the risk of looping
	// forever.
	AllowNonIncreasingOIDs bool `yaml:"allow_nonincreasing_oids,omitempty"`
}

func (c *WalkParams) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultWalkParams
	type plain WalkParams
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	if _, err := snmp.ParseOID(c.RootOID); err != nil {
		return fmt.Errorf("walk.root_oid: %w", err)
	}
	// The walk has a single head OID, which a non-repeater would consume.
	if c.NonRepeaters != 0 {
		return fmt.Errorf("walk.non_repeaters must be 0, got %d", c.NonRepeaters)
	}
	if c.MaxRepetitions == 0 {
		return fmt.Errorf("walk.max_repetitions must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("walk.timeout must be positive")
	}
	if c.TickInterval <= 0 || c.TickInterval > c.Timeout {
		return fmt.Errorf("walk.tick_interval must be positive and not exceed walk.timeout")
	}
	return nil
}

// Root returns the parsed root OID. Validated on load.
func (c WalkParams) Root() snmp.OID {
	oid, err := snmp.ParseOID(c.RootOID)
	if err != nil {
		return nil
	}
	return oid
}

type SinkConfig struct {
	Type        string        `yaml:"type,omitempty"`
	Measurement string        `yaml:"measurement,omitempty"`
	Backdate    time.Duration `yaml:"backdate,omitempty"`

	InfluxDB InfluxDBConfig `yaml:"influxdb,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
	AMQP     AMQPConfig     `yaml:"amqp,omitempty"`
}

func (c *SinkConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultSinkConfig
	type plain SinkConfig
	return unmarshal((*plain)(c))
}

func (c SinkConfig) validate() error {
	if c.Measurement == "" {
		return fmt.Errorf("sink.measurement is missing")
	}
	if c.Backdate < 0 {
		return fmt.Errorf("sink.backdate must not be negative")
	}
	switch c.Type {
	case SinkInfluxDB:
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("sink.influxdb.url is missing")
		}
		if c.InfluxDB.Database == "" {
			return fmt.Errorf("sink.influxdb.database is missing")
		}
	case SinkRedis:
		if c.Redis.Stream == "" {
			return fmt.Errorf("sink.redis.stream is missing")
		}
	case SinkAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("sink.amqp.url is missing")
		}
		if c.AMQP.Exchange == "" && c.AMQP.RoutingKey == "" {
			return fmt.Errorf("sink.amqp.routing_key is required with the default exchange")
		}
	default:
		return fmt.Errorf("sink type must be one of %s, %s or %s. Got: %q", SinkInfluxDB, SinkRedis, SinkAMQP, c.Type)
	}
	return nil
}

type InfluxDBConfig struct {
	URL      string        `yaml:"url,omitempty"`
	Database string        `yaml:"database,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password Secret        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

func (c *InfluxDBConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultInfluxDBConfig
	type plain InfluxDBConfig
	return unmarshal((*plain)(c))
}

type RedisConfig struct {
	Network  string `yaml:"network,omitempty"`
	Address  string `yaml:"address,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Password Secret `yaml:"password,omitempty"`
	Stream   string `yaml:"stream,omitempty"`
	// Approximate cap on the stream length, 0 for unbounded.
	MaxLen int64 `yaml:"max_len,omitempty"`
}

func (c *RedisConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultRedisConfig
	type plain RedisConfig
	return unmarshal((*plain)(c))
}

type AMQPConfig struct {
	// The URL usually carries credentials.
	URL        Secret `yaml:"url,omitempty"`
	Exchange   string `yaml:"exchange,omitempty"`
	RoutingKey string `yaml:"routing_key,omitempty"`
}

func (c *AMQPConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultAMQPConfig
	type plain AMQPConfig
	return unmarshal((*plain)(c))
}
