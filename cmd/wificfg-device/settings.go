package main

import (
	"github.com/leegang/WifiConfig/pkg/param"
)

// appSettings are the application parameters served under /settings.
// A fresh value is created for every boot; the stored blob overwrites the
// defaults during Setup.
type appSettings struct {
	broker   string
	port     int64
	user     string
	password string
	topic    string

	interval int64
	celsius  bool
	offset   float64
	logLevel string
}

func newAppSettings() *appSettings {
	return &appSettings{
		broker:   "mqtt.local",
		port:     1883,
		topic:    "sensors/wificfg",
		interval: 60,
		celsius:  true,
		logLevel: "info",
	}
}

// Registry declares the settings groups in the order they are served.
func (s *appSettings) Registry() *param.Registry {
	mqtt := param.NewGroup("mqtt",
		param.WithLabel("MQTT"),
		param.WithDescription("Broker the readings are published to")).
		MustAdd(
			param.String("broker", &s.broker, param.AccessReadWrite).WithMaxLength(64),
			param.Int("port", &s.port, param.AccessReadWrite),
			param.String("user", &s.user, param.AccessReadWrite).WithMaxLength(32),
			param.String("password", &s.password, param.AccessWrite).WithMaxLength(64),
			param.String("topic", &s.topic, param.AccessReadWrite).WithMaxLength(64),
		)

	sensor := param.NewGroup("sensor", param.WithLabel("Sensor")).
		MustAdd(
			param.Int("interval", &s.interval, param.AccessReadWrite),
			param.Bool("celsius", &s.celsius, param.AccessReadWrite),
			param.Float("offset", &s.offset, param.AccessReadWrite),
		)

	device := param.NewGroup("device", param.WithLabel("Device")).
		MustAdd(
			param.Enum("log_level", &s.logLevel, param.AccessReadWrite, "debug", "info", "warn", "error"),
		)

	r := param.NewRegistry()
	if err := r.Add(mqtt, sensor, device); err != nil {
		panic(err)
	}
	return r
}
