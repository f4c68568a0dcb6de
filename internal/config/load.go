// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/flowcore/internal/errors"
)

// Default returns a fully populated configuration.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.normalize(); err != nil {
		// Defaults are constants; failure here is a programming error.
		panic(err)
	}
	return cfg
}

// Load reads and validates an HCL file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindNotFound, "read config %s", path)
	}
	return Parse(path, data)
}

// Parse decodes HCL source. filename must end in .hcl and is used in
// diagnostics.
func Parse(filename string, data []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to decode config")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills defaults and parses durations.
func (c *Config) normalize() error {
	if c.Table == nil {
		c.Table = &TableConfig{}
	}
	if c.Engine == nil {
		c.Engine = &EngineConfig{}
	}
	if c.TLS == nil {
		c.TLS = &TLSConfig{}
	}
	if c.Service == nil {
		c.Service = &ServiceConfig{}
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}

	t := c.Table
	if t.MaxFlows == 0 {
		t.MaxFlows = 100000
	}
	if t.MaxFlows < 0 {
		return errors.Attr(errors.New(errors.KindValidation, "max_flows must be positive"), "max_flows", t.MaxFlows)
	}
	if t.PoolSize == 0 {
		t.PoolSize = 1024
	}
	if t.PoolSize < 0 {
		return errors.Attr(errors.New(errors.KindValidation, "pool_size must be positive"), "pool_size", t.PoolSize)
	}
	var err error
	if t.cleanupInterval, err = duration("table.cleanup_interval", t.CleanupInterval, time.Minute); err != nil {
		return err
	}

	e := c.Engine
	if e.tcpTimeout, err = duration("engine.tcp_timeout", e.TCPTimeout, time.Hour); err != nil {
		return err
	}
	if e.udpTimeout, err = duration("engine.udp_timeout", e.UDPTimeout, 3*time.Minute); err != nil {
		return err
	}
	if e.ipTimeout, err = duration("engine.ip_timeout", e.IPTimeout, 30*time.Second); err != nil {
		return err
	}

	for i, ja3 := range c.TLS.BlockedJA3 {
		c.TLS.BlockedJA3[i] = strings.ToLower(strings.TrimSpace(ja3))
	}
	for _, pm := range c.Service.Ports {
		if _, _, err := ParsePortKey(pm.Key); err != nil {
			return err
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

func duration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Attr(errors.Wrapf(err, errors.KindValidation, "invalid duration for %s", field), "value", s)
	}
	if d <= 0 {
		return 0, errors.Attr(errors.Errorf(errors.KindValidation, "%s must be positive", field), "value", s)
	}
	return d, nil
}

// ParsePortKey splits "tcp/443" into its protocol and port.
func ParsePortKey(key string) (proto string, port uint16, err error) {
	proto, num, ok := strings.Cut(key, "/")
	proto = strings.ToLower(proto)
	if !ok || (proto != "tcp" && proto != "udp") {
		return "", 0, errors.Attr(errors.New(errors.KindValidation, "port key must be tcp/<n> or udp/<n>"), "key", key)
	}
	n, err := strconv.ParseUint(num, 10, 16)
	if err != nil || n == 0 {
		return "", 0, errors.Attr(errors.New(errors.KindValidation, "invalid port number"), "key", key)
	}
	return proto, uint16(n), nil
}
