package util

import (
	"github.com/berfenger/smlmeter2mqtt/internal/config"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Meter: config.MeterConfig{
			Type:              sml.CONNECTOR_TYPE_TEST,
			ReadTimeoutMillis: 2000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "smlmeter",
			HADiscoveryTopic: "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 1000,
		},
		History: config.HistoryConfig{
			Table: "meter_snapshots",
		},
		Port: 8080,
	}
}
