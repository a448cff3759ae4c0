package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap-incubator/tinyocc/log"
	"github.com/pingcap/errors"
)

type Config struct {
	StatusAddr string `toml:"status-addr"`
	LogLevel   string `toml:"log-level"`
	// Empty means stderr.
	LogFile string `toml:"log-file"`

	DBPath string `toml:"db-path"` // Directory to store the data in. Should exist and be writable.

	// The region served by this process, [RegionStartKey, RegionEndKey). An empty end key is unbounded.
	RegionID       uint64 `toml:"region-id"`
	RegionStartKey string `toml:"region-start-key"`
	RegionEndKey   string `toml:"region-end-key"`

	// A transaction which is not touched for this long is presumed dead and aborted.
	TxnLeaseTime Duration `toml:"txn-lease-time"`
	// How often leases are checked for expiry.
	TxnLeaseCheckInterval Duration `toml:"txn-lease-check-interval"`
	// When the commit history holds more than this many transactions, a begin schedules a history gc.
	HistoryGCThreshold int `toml:"history-gc-threshold"`
	// How often txn log records no active transaction needs are deleted.
	TxnLogTruncateInterval Duration `toml:"txn-log-truncate-interval"`

	EngineMaxTableSize     ByteSize `toml:"engine-max-table-size"`
	EngineValueLogFileSize ByteSize `toml:"engine-value-log-file-size"`
}

func (c *Config) Validate() error {
	if c.TxnLeaseTime.Duration <= 0 {
		return fmt.Errorf("txn lease time must be greater than 0")
	}
	if c.TxnLeaseCheckInterval.Duration <= 0 {
		return fmt.Errorf("txn lease check interval must be greater than 0")
	}
	if c.TxnLeaseCheckInterval.Duration > c.TxnLeaseTime.Duration {
		log.Warnf("txn lease check interval %v is longer than the lease time %v, "+
			"leases will expire late", c.TxnLeaseCheckInterval, c.TxnLeaseTime)
	}
	if c.TxnLogTruncateInterval.Duration <= 0 {
		return fmt.Errorf("txn log truncate interval must be greater than 0")
	}
	if c.HistoryGCThreshold < 0 {
		return fmt.Errorf("history gc threshold must not be negative")
	}
	if len(c.RegionEndKey) != 0 && c.RegionStartKey >= c.RegionEndKey {
		return fmt.Errorf("region start key %q must be less than end key %q", c.RegionStartKey, c.RegionEndKey)
	}
	if len(c.DBPath) == 0 {
		return fmt.Errorf("db path must be set")
	}
	return nil
}

const (
	KB uint64 = 1024
	MB uint64 = 1024 * 1024
)

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		StatusAddr:             "127.0.0.1:20180",
		LogLevel:               getLogLevel(),
		DBPath:                 "/tmp/tinyocc",
		RegionID:               1,
		TxnLeaseTime:           NewDuration(60 * time.Second),
		TxnLeaseCheckInterval:  NewDuration(1 * time.Second),
		HistoryGCThreshold:     100,
		TxnLogTruncateInterval: NewDuration(10 * time.Second),
		EngineMaxTableSize:     ByteSize(64 * MB),
		EngineValueLogFileSize: ByteSize(256 * MB),
	}
}

func NewTestConfig() *Config {
	return &Config{
		StatusAddr:             "127.0.0.1:0",
		LogLevel:               getLogLevel(),
		DBPath:                 "/tmp/tinyocc",
		RegionID:               1,
		TxnLeaseTime:           NewDuration(500 * time.Millisecond),
		TxnLeaseCheckInterval:  NewDuration(20 * time.Millisecond),
		HistoryGCThreshold:     10,
		TxnLogTruncateInterval: NewDuration(100 * time.Millisecond),
		EngineMaxTableSize:     ByteSize(4 * MB),
		EngineValueLogFileSize: ByteSize(16 * MB),
	}
}

// LoadFile overlays the TOML file at path onto the defaults.
func LoadFile(path string) (*Config, error) {
	conf := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, errors.Annotatef(err, "decode config %s", path)
	}
	return conf, nil
}

// Duration is a time.Duration which can be decoded from a TOML string such as "10s".
type Duration struct {
	time.Duration
}

func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.WithStack(err)
}

// ByteSize is a size which can be decoded from a human readable TOML string such as "64MB".
type ByteSize uint64

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(b))), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	s := string(text)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}
	v, err := units.RAMInBytes(s)
	if err != nil {
		return errors.WithStack(err)
	}
	*b = ByteSize(v)
	return nil
}
