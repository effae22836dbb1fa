// Package bootconfig loads the boot-time configuration armos reads
// before constructing a Kernel: which registered program to run as
// init, its argv, and the demo bytes to feed the fake UART so a run is
// reproducible without a real keyboard.
package bootconfig

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the TOML document cmd/armos reads at startup.
type Config struct {
	Init struct {
		Program string   `toml:"program"`
		Argv    []string `toml:"argv"`
	} `toml:"init"`

	Console struct {
		Feed string `toml:"feed"`
	} `toml:"console"`
}

// Default returns the configuration used when no file is given: boot
// the registered "shell" demo program with no arguments.
func Default() Config {
	c := Config{}
	c.Init.Program = "shell"
	return c
}

// Load reads and parses a TOML boot configuration file.
func Load(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, errors.Wrapf(err, "bootconfig: decoding %s", path)
	}
	if c.Init.Program == "" {
		return Config{}, errors.Errorf("bootconfig: %s: init.program is required", path)
	}
	return c, nil
}
