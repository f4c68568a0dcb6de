// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the HCL configuration of the flow table, the engine
// and the bundled inspectors.
package config

import (
	"time"
)

// Config is the top-level flowcore configuration.
type Config struct {
	Table   *TableConfig   `hcl:"table,block" json:"table,omitempty"`
	Engine  *EngineConfig  `hcl:"engine,block" json:"engine,omitempty"`
	TLS     *TLSConfig     `hcl:"tls,block" json:"tls,omitempty"`
	Service *ServiceConfig `hcl:"service,block" json:"service,omitempty"`
	Logging *LoggingConfig `hcl:"logging,block" json:"logging,omitempty"`
}

// TableConfig sizes the flow table.
type TableConfig struct {
	// Maximum number of concurrently tracked keys.
	// @default: 100000
	MaxFlows int `hcl:"max_flows,optional" json:"max_flows,omitempty"`
	// Idle records are kept in a pool of at most this size.
	// @default: 1024
	PoolSize int `hcl:"pool_size,optional" json:"pool_size,omitempty"`
	// How often idle expired flows are pruned.
	// @default: "1m"
	CleanupInterval string `hcl:"cleanup_interval,optional" json:"cleanup_interval,omitempty"`

	cleanupInterval time.Duration
}

// CleanupIntervalDuration returns the parsed cleanup interval.
func (t *TableConfig) CleanupIntervalDuration() time.Duration { return t.cleanupInterval }

// EngineConfig controls per-packet processing.
type EngineConfig struct {
	// Idle timeout for TCP flows.
	// @default: "1h"
	TCPTimeout string `hcl:"tcp_timeout,optional" json:"tcp_timeout,omitempty"`
	// Idle timeout for UDP flows.
	// @default: "3m"
	UDPTimeout string `hcl:"udp_timeout,optional" json:"udp_timeout,omitempty"`
	// Idle timeout for ICMP and other IP flows.
	// @default: "30s"
	IPTimeout string `hcl:"ip_timeout,optional" json:"ip_timeout,omitempty"`
	// Inspectors not bound to new flows.
	// @example: ["tls"]
	Disabled []string `hcl:"disabled,optional" json:"disabled,omitempty"`

	tcpTimeout time.Duration
	udpTimeout time.Duration
	ipTimeout  time.Duration
}

func (e *EngineConfig) TCPTimeoutDuration() time.Duration { return e.tcpTimeout }
func (e *EngineConfig) UDPTimeoutDuration() time.Duration { return e.udpTimeout }
func (e *EngineConfig) IPTimeoutDuration() time.Duration  { return e.ipTimeout }

// IsDisabled reports whether the named inspector is turned off.
func (e *EngineConfig) IsDisabled(name string) bool {
	for _, d := range e.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// TLSConfig configures the TLS fingerprinting inspector.
type TLSConfig struct {
	// JA3 digests (lowercase hex) whose flows are blocked.
	BlockedJA3 []string `hcl:"blocked_ja3,optional" json:"blocked_ja3,omitempty"`
	// Server names whose flows are blocked. A leading "*." matches subdomains.
	BlockedSNI []string `hcl:"blocked_sni,optional" json:"blocked_sni,omitempty"`
}

// ServiceConfig configures port-based service identification.
type ServiceConfig struct {
	// Extra port mappings, e.g. port "tcp/8443" { name = "https" app_id = 1122 }.
	Ports []PortMapping `hcl:"port,block" json:"port,omitempty"`
}

// PortMapping names the service on a transport port.
type PortMapping struct {
	Key   string `hcl:"key,label" json:"key"`
	Name  string `hcl:"name" json:"name"`
	AppID int32  `hcl:"app_id,optional" json:"app_id,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// @enum: debug, info, warn, error
	// @default: "info"
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}
