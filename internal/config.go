package internal

import "time"

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,required=true"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	TelemetryBufferSize  int           `env:"TELEMETRY_BUFFER_SIZE,required=true"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	AuthSecret           string        `env:"AUTH_SECRET,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
}
