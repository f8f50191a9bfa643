package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GRPCAddr string `envconfig:"RELAY_GRPC_ADDR"`
	HTTPAddr string `envconfig:"RELAY_HTTP_ADDR" default:"http://localhost:3000"`
	// E2E_DEBUG_JSON allows dumping every stream frame as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
