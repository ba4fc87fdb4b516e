// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type ShipwayConfig struct {
	// Remote: where the application lands on the target host
	Remote RemoteConfig `yaml:"remote"`

	// Proxy: nginx site naming and log locations on the target host
	Proxy ProxyConfig `yaml:"proxy"`

	// Timeouts: per-operation limits in seconds (0 means package default)
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Logging: local durable log settings
	Logging LoggingConfig `yaml:"logging"`

	// History: local run-history store settings
	History HistoryConfig `yaml:"history"`
}

type RemoteConfig struct {
	DeployDir string `yaml:"deploy_dir"` // e.g. /opt/shipway_app
	SSHPort   int    `yaml:"ssh_port"`   // e.g. 22
}

type ProxyConfig struct {
	SiteName      string `yaml:"site_name"`      // file name under sites-available
	AccessLogPath string `yaml:"access_log"`     // nginx access log
	ErrorLogPath  string `yaml:"error_log"`      // nginx error log
	AvailableDir  string `yaml:"available_dir"`  // sites-available location
	EnabledDir    string `yaml:"enabled_dir"`    // sites-enabled location
}

type TimeoutConfig struct {
	ConnectSeconds   int `yaml:"connect_seconds"`   // SSH dial
	CommandSeconds   int `yaml:"command_seconds"`   // ordinary remote commands
	ProvisionSeconds int `yaml:"provision_seconds"` // package installs
	BuildSeconds     int `yaml:"build_seconds"`     // image builds
	ProbeSeconds     int `yaml:"probe_seconds"`     // validation probes
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // log directory, supports ~
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // badger store directory, supports ~
	Keep    int    `yaml:"keep"` // number of runs retained
}

func DefaultConfig() ShipwayConfig {
	return ShipwayConfig{
		Remote: RemoteConfig{
			DeployDir: "/opt/shipway_app",
			SSHPort:   22,
		},
		Proxy: ProxyConfig{
			SiteName:      "shipway_app",
			AccessLogPath: "/var/log/nginx/shipway_access.log",
			ErrorLogPath:  "/var/log/nginx/shipway_error.log",
			AvailableDir:  "/etc/nginx/sites-available",
			EnabledDir:    "/etc/nginx/sites-enabled",
		},
		Timeouts: TimeoutConfig{
			ConnectSeconds:   10,
			CommandSeconds:   60,
			ProvisionSeconds: 600,
			BuildSeconds:     900,
			ProbeSeconds:     10,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.shipway/logs",
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     "~/.shipway/history",
			Keep:    50,
		},
	}
}
