// Package config holds the programmer's transport and power settings,
// loadable from an optional YAML file. Command-line flags overlay the
// file, so the file only needs the settings that differ from the
// defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Power selects and parameterizes the power agent.
type Power struct {
	// Kind is "manual" (prompt the operator) or "gpio" (drive relay
	// lines).
	Kind string `yaml:"kind"`

	// GPIO settings, used only when Kind is "gpio".
	GPIOChip string `yaml:"gpio_chip"`
	T30Line  int    `yaml:"t30_line"`
	T15Line  int    `yaml:"t15_line"`
}

// Config is the full programmer configuration.
type Config struct {
	// InterfaceName names the CAN adapter driver. "slcan" is the one
	// built-in transport.
	InterfaceName string `yaml:"interface_name"`

	// InterfaceChannel is the driver's channel selector; for slcan it
	// is the serial device path.
	InterfaceChannel string `yaml:"interface_channel"`

	// BitrateKbps is the CAN bus bitrate in kbit/s.
	BitrateKbps int `yaml:"bitrate"`

	Power Power `yaml:"power"`
}

// Default returns the configuration used when no file and no flags
// override anything: an slcan adapter on the first USB serial port at
// the MRS bootloader's factory bitrate, with manual power control.
func Default() Config {
	return Config{
		InterfaceName:    "slcan",
		InterfaceChannel: "/dev/ttyUSB0",
		BitrateKbps:      125,
		Power:            Power{Kind: "manual"},
	}
}

// Load reads path into a Config layered over Default. A missing file
// is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
