// Package config holds the Link-Chat configuration: interface and identity
// settings plus the reliability knobs consumed by the transfer layer.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults. Fragment size keeps header + sequence + checksum + data well
// under the 1500-byte Ethernet payload bound.
const (
	DefaultFragmentSize = 1024
	DefaultAckTimeout   = 500 * time.Millisecond
	DefaultMaxRetries   = 5
	DefaultDownloadDir  = "received"
)

// maxFragmentSize is the largest data slice that still fits one Ethernet
// frame next to the packet header, sequence number, and checksum.
const maxFragmentSize = 1500 - 3 - 8

// Duration wraps time.Duration so TOML values like "500ms" parse directly.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Transfer groups the reliability knobs of the fragment-delivery protocol.
type Transfer struct {
	FragmentSize int      `toml:"fragment_size"` // data bytes per fragment
	AckTimeout   Duration `toml:"ack_timeout"`   // per-attempt wait before retransmit
	MaxRetries   int      `toml:"max_retries"`   // attempts before the transfer aborts
}

// Config stores all parameters gathered from the config file and CLI flags.
type Config struct {
	Interface   string   `toml:"interface"`    // network interface, e.g. "eth0"; empty = autodetect
	Username    string   `toml:"username"`     // name announced in discovery
	DownloadDir string   `toml:"download_dir"` // where received files land
	BridgeURL   string   `toml:"bridge_url"`   // non-empty = use the WebSocket bridge transport
	Transfer    Transfer `toml:"transfer"`
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	return &Config{
		DownloadDir: DefaultDownloadDir,
		Transfer: Transfer{
			FragmentSize: DefaultFragmentSize,
			AckTimeout:   Duration{DefaultAckTimeout},
			MaxRetries:   DefaultMaxRetries,
		},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not
// an error; flags and defaults carry a fresh install.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the reliability knobs against their hard bounds.
func (c *Config) Validate() error {
	t := &c.Transfer
	if t.FragmentSize < 1 || t.FragmentSize > maxFragmentSize {
		return fmt.Errorf("fragment_size must be 1..%d, got %d", maxFragmentSize, t.FragmentSize)
	}
	if t.AckTimeout.Duration <= 0 {
		return fmt.Errorf("ack_timeout must be positive, got %s", t.AckTimeout.Duration)
	}
	if t.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", t.MaxRetries)
	}
	return nil
}
