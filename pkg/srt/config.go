package srt

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Encryption selects the cipher strength for a connection, spec section 6.
type Encryption string

const (
	EncryptionOff    Encryption = "off"
	EncryptionAES128 Encryption = "aes128"
	EncryptionAES192 Encryption = "aes192"
	EncryptionAES256 Encryption = "aes256"
)

func (e Encryption) keyBits() int {
	switch e {
	case EncryptionAES128:
		return 128
	case EncryptionAES192:
		return 192
	case EncryptionAES256:
		return 256
	default:
		return 0
	}
}

// Config is the application-facing configuration surface named in spec
// section 6. Mirrors the teacher's SRTConfig/ValidateConfig shape: plain
// struct with defaults filled in by DefaultConfig and validated once at
// construction, loadable from YAML the same way the teacher's
// internal/sol/config.go loads its server config.
type Config struct {
	Encryption             Encryption    `yaml:"encryption"`
	Passphrase             string        `yaml:"passphrase"`
	PlaybackDelayMs        int           `yaml:"playback_delay_ms"`
	MSSBytes               int           `yaml:"mss_bytes"`
	MaxBandwidthBps        int64         `yaml:"max_bandwidth_bps"`
	InitialSendWindow      int           `yaml:"initial_send_window_packets"`
	InitialRecvWindow      int           `yaml:"initial_recv_window_packets"`
	KeyRefreshPackets      uint64        `yaml:"key_refresh_packets"`
	AckFrequencyPackets    int           `yaml:"ack_frequency_packets"`
	RetransmitTimeoutMinUs int           `yaml:"retransmit_timeout_min_us"`
	RetransmitTimeoutMaxUs int           `yaml:"retransmit_timeout_max_us"`
	MaxRetransmits         int           `yaml:"max_retransmits"`
	StreamID               string        `yaml:"stream_id"`
	Timeout                time.Duration `yaml:"-"`
}

// DefaultConfig returns a Config with every spec-section-6 default filled
// in and encryption off.
func DefaultConfig() Config {
	return Config{
		Encryption:             EncryptionOff,
		PlaybackDelayMs:        defaultPlaybackDelayMs,
		MSSBytes:               defaultMSS,
		MaxBandwidthBps:        defaultMaxBandwidthBps,
		InitialSendWindow:      defaultSendWindowPackets,
		InitialRecvWindow:      defaultRecvWindowPackets,
		KeyRefreshPackets:      defaultKeyRefreshPackets,
		AckFrequencyPackets:    defaultAckFrequencyPackets,
		RetransmitTimeoutMinUs: int(defaultMinRTO / time.Microsecond),
		RetransmitTimeoutMaxUs: int(defaultMaxRTO / time.Microsecond),
		MaxRetransmits:         defaultMaxRetransmits,
		Timeout:                5 * time.Second,
	}
}

// LoadConfigYAML reads and validates a Config from a YAML file, starting
// from DefaultConfig so an incomplete document still yields valid
// defaults for anything it omits.
func LoadConfigYAML(path string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("srt: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("srt: parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every field named in spec section 6 against its
// documented range.
func (c *Config) Validate() error {
	switch c.Encryption {
	case EncryptionOff, EncryptionAES128, EncryptionAES192, EncryptionAES256:
	default:
		return fmt.Errorf("srt: invalid encryption mode %q", c.Encryption)
	}
	if c.Encryption != EncryptionOff {
		if len(c.Passphrase) < minPassphraseLen || len(c.Passphrase) > maxPassphraseLen {
			return ErrHandshakePassphrase
		}
	}
	if c.PlaybackDelayMs < minPlaybackDelayMs || c.PlaybackDelayMs > maxPlaybackDelayMs {
		return fmt.Errorf("srt: playback_delay_ms %d outside [%d, %d]", c.PlaybackDelayMs, minPlaybackDelayMs, maxPlaybackDelayMs)
	}
	if c.MSSBytes < 76 || c.MSSBytes > 65536 {
		return fmt.Errorf("srt: mss_bytes %d outside [76, 65536]", c.MSSBytes)
	}
	if c.MaxBandwidthBps < 80_000 {
		return fmt.Errorf("srt: max_bandwidth_bps %d below 80000", c.MaxBandwidthBps)
	}
	if c.InitialSendWindow < 1 {
		return fmt.Errorf("srt: initial_send_window_packets must be >= 1")
	}
	if c.InitialRecvWindow < 1 {
		return fmt.Errorf("srt: initial_recv_window_packets must be >= 1")
	}
	if c.KeyRefreshPackets < 1000 {
		return fmt.Errorf("srt: key_refresh_packets must be >= 1000")
	}
	if c.AckFrequencyPackets < 1 {
		return fmt.Errorf("srt: ack_frequency_packets must be >= 1")
	}
	if c.MaxRetransmits < 1 {
		return fmt.Errorf("srt: max_retransmits must be >= 1")
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return nil
}

func (c Config) maxPayload() int {
	return c.MSSBytes - headerSize
}
