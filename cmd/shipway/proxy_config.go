// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jinterlante1206/AleutianShipway/cmd/shipway/config"
	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

// =============================================================================
// Nginx Site Template
// =============================================================================

// nginxSiteTemplate is the reverse proxy site definition. The app is
// only reachable on loopback; this is its sole public doorway.
const nginxSiteTemplate = `server {
    listen 80;
    listen [::]:80;
    server_name _;

    access_log {{.AccessLog}};
    error_log  {{.ErrorLog}};

    # Basic hardening
    server_tokens off;
    add_header X-Content-Type-Options nosniff;
    add_header X-Frame-Options SAMEORIGIN;

    location /health {
        access_log off;
        return 200 "ok\n";
        add_header Content-Type text/plain;
    }

    location / {
        proxy_pass http://127.0.0.1:{{.AppPort}};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_read_timeout 60s;
    }
}
`

var siteTemplate = template.Must(template.New("nginx-site").Parse(nginxSiteTemplate))

// siteParams feeds the site template.
type siteParams struct {
	AppPort   int
	AccessLog string
	ErrorLog  string
}

// =============================================================================
// Proxy Configurer
// =============================================================================

// ProxyConfigurer installs and activates the nginx site that fronts
// the deployed application.
//
// # Description
//
// The rendered site file travels to the remote host base64-encoded and
// is decoded into place by sudo tee, which sidesteps every quoting
// hazard a heredoc-over-ssh would invite. Activation is gated on
// `nginx -t`: a config that fails validation is never loaded, and the
// previously working proxy keeps serving.
type ProxyConfigurer struct {
	session  *RemoteSession
	log      *logging.Logger
	timeouts Timeouts
	cfg      config.ProxyConfig
}

// NewProxyConfigurer builds a configurer from the proxy settings.
func NewProxyConfigurer(session *RemoteSession, log *logging.Logger, timeouts Timeouts, cfg config.ProxyConfig) *ProxyConfigurer {
	return &ProxyConfigurer{session: session, log: log, timeouts: timeouts, cfg: cfg}
}

// renderSite produces the site file contents.
func (p *ProxyConfigurer) renderSite(appPort int) (string, error) {
	var sb strings.Builder
	err := siteTemplate.Execute(&sb, siteParams{
		AppPort:   appPort,
		AccessLog: p.cfg.AccessLogPath,
		ErrorLog:  p.cfg.ErrorLogPath,
	})
	if err != nil {
		return "", configurationErrf("render nginx site: %w", err)
	}
	return sb.String(), nil
}

// sitePath returns the sites-available path for the managed site.
func (p *ProxyConfigurer) sitePath() string {
	return filepath.Join(p.cfg.AvailableDir, p.cfg.SiteName)
}

// enabledPath returns the sites-enabled symlink path.
func (p *ProxyConfigurer) enabledPath() string {
	return filepath.Join(p.cfg.EnabledDir, p.cfg.SiteName)
}

// Configure renders, installs, validates, and activates the site.
//
// # Error Conditions
//
//   - install/symlink failure: ConfigurationError (exit 5)
//   - `nginx -t` rejection: ConfigurationError (exit 5), no reload issued
//   - reload/start failure: ConfigurationError (exit 5)
func (p *ProxyConfigurer) Configure(ctx context.Context, appPort int) error {
	site, err := p.renderSite(appPort)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(site))
	install := fmt.Sprintf("echo %s | base64 -d | sudo tee %s > /dev/null", encoded, p.sitePath())
	if err := p.runConfig(ctx, install, "install nginx site"); err != nil {
		return err
	}

	enable := fmt.Sprintf("sudo ln -sf %s %s", p.sitePath(), p.enabledPath())
	if err := p.runConfig(ctx, enable, "enable nginx site"); err != nil {
		return err
	}

	// The distro default site also answers on :80 and would shadow ours
	p.removeDefaultSite(ctx)

	validate := "sudo nginx -t"
	res, err := p.session.Run(ctx, validate, p.timeouts.Command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return configurationErrf("nginx rejected the generated configuration: %w",
			NewRemoteCommandError(validate, res.ExitStatus, res.Output, nil))
	}

	return p.reloadOrStart(ctx)
}

// runConfig executes a command and wraps failure as a configuration
// error.
func (p *ProxyConfigurer) runConfig(ctx context.Context, cmd, what string) error {
	res, err := p.session.Run(ctx, cmd, p.timeouts.Command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return configurationErrf("%s failed: %w", what,
			NewRemoteCommandError(cmd, res.ExitStatus, res.Output, nil))
	}
	return nil
}

// removeDefaultSite unlinks the distro default site. Missing is fine.
func (p *ProxyConfigurer) removeDefaultSite(ctx context.Context) {
	cmd := fmt.Sprintf("sudo rm -f %s", filepath.Join(p.cfg.EnabledDir, "default"))
	if res, err := p.session.Run(ctx, cmd, p.timeouts.Command); err != nil || !res.Ok() {
		p.log.Debug("could not remove default nginx site")
	}
}

// reloadOrStart reloads a running nginx, or starts a stopped one.
func (p *ProxyConfigurer) reloadOrStart(ctx context.Context) error {
	res, err := p.session.Run(ctx, "sudo systemctl reload nginx", p.timeouts.Command)
	if err != nil {
		return err
	}
	if res.Ok() {
		p.log.Info("nginx reloaded")
		return nil
	}
	// Reload fails when nginx is not running at all
	return p.runConfig(ctx, "sudo systemctl restart nginx", "start nginx")
}

// Remove tears down the managed site and reloads nginx. Used by
// cleanup; best effort is the caller's policy, so errors are returned
// rather than swallowed.
func (p *ProxyConfigurer) Remove(ctx context.Context) error {
	cmd := fmt.Sprintf("sudo rm -f %s %s", p.enabledPath(), p.sitePath())
	if err := p.runConfig(ctx, cmd, "remove nginx site"); err != nil {
		return err
	}
	res, err := p.session.Run(ctx, "sudo systemctl reload nginx", p.timeouts.Command)
	if err != nil {
		return err
	}
	if !res.Ok() {
		p.log.Warn("nginx reload after site removal failed", "status", res.ExitStatus)
	}
	return nil
}
