package config

import "github.com/docopt/docopt-go"

// ApplyFlags overrides configuration with the command-line options that were
// given. Options left out keep their environment values.
func (c *Config) ApplyFlags(opts docopt.Opts) {
	if host, err := opts.String("--host"); err == nil && host != "" {
		c.Server.Host = host
	}
	if port, err := opts.Int("--port"); err == nil {
		c.Server.Port = port
	}
	if host, err := opts.String("--directory-host"); err == nil && host != "" {
		c.Directory.Host = host
	}
	if port, err := opts.Int("--directory-port"); err == nil {
		c.Directory.Port = port
	}
	if discover, err := opts.Bool("--discover"); err == nil && discover {
		c.Discovery.Enabled = true
	}
}
