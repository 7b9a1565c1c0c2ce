package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	Meter         MeterConfig   `mapstructure:"meter"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`
	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	History       HistoryConfig `mapstructure:"history"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type MeterConfig struct {
	Type              string
	Host              string
	Port              int
	SerialDevice      string `mapstructure:"serial_device"`
	Baud              int
	ReadTimeoutMillis uint32 `mapstructure:"read_timeout_millis"`
	VerifyMessageCRC  bool   `mapstructure:"verify_message_crc"`
	DeviceIDObis      string `mapstructure:"device_id_obis"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type HistoryConfig struct {
	DSN   string
	Table string
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c MeterConfig) Endpoint() sml.Endpoint {
	return sml.Endpoint{
		Type:         c.Type,
		Host:         c.Host,
		Port:         c.Port,
		SerialDevice: c.SerialDevice,
		Baud:         c.Baud,
	}
}

// DeviceIDCode parses DeviceIDObis, empty means the default server id entry.
func (c MeterConfig) DeviceIDCode() (sml.ObisCode, error) {
	if strings.TrimSpace(c.DeviceIDObis) == "" {
		return sml.ObisDeviceID, nil
	}
	return sml.ParseObisCode(c.DeviceIDObis)
}

func (c MeterConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMillis) * time.Millisecond
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c HistoryConfig) Enabled() bool {
	return c.DSN != ""
}

// Validate checks bounds and normalizes the MQTT topics.
func (cfg *Config) Validate() error {
	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	switch cfg.Meter.Type {
	case sml.CONNECTOR_TYPE_COMET:
		if cfg.Meter.Host == "" || cfg.Meter.Port <= 0 {
			return fmt.Errorf("config params meter.host and meter.port are required for meter type %s", cfg.Meter.Type)
		}
	case sml.CONNECTOR_TYPE_SERIAL:
		if cfg.Meter.SerialDevice == "" {
			return fmt.Errorf("config param meter.serial_device is required for meter type %s", cfg.Meter.Type)
		}
	case sml.CONNECTOR_TYPE_TEST:
	default:
		return fmt.Errorf("config param meter.type: connector type %q is not supported", cfg.Meter.Type)
	}

	deviceIDCode, err := cfg.Meter.DeviceIDCode()
	if err != nil {
		return fmt.Errorf("config param meter.device_id_obis: %w", err)
	}
	for _, code := range []sml.ObisCode{sml.ObisVendorID, sml.ObisImportTotal, sml.ObisImportT1,
		sml.ObisExportTotal, sml.ObisExportT1, sml.ObisActivePower} {
		if deviceIDCode == code {
			return fmt.Errorf("config param meter.device_id_obis: %s is already mapped", code)
		}
	}

	// check bounds
	if cfg.Meter.ReadTimeoutMillis < 500 {
		return errors.New("config param meter.read_timeout_millis should be >= 500")
	}
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.History.Enabled() && !tableNameRegexp.MatchString(cfg.History.Table) {
		return errors.New("config param history.table can only contain letters, numbers and underscores")
	}
	return nil
}

var tableNameRegexp = regexp.MustCompile("^[a-zA-Z_][a-zA-Z0-9_]*$")

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
