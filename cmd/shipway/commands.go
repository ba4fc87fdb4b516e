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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jinterlante1206/AleutianShipway/cmd/shipway/config"
	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
	"github.com/jinterlante1206/AleutianShipway/pkg/ux"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// appLog is the process-wide logger, set up in main before Execute.
var appLog *logging.Logger

// Deployment flags. The git token is intentionally absent: tokens on
// the command line leak into shell history and process listings, so it
// only arrives via SHIPWAY_GIT_TOKEN or the masked prompt.
var (
	flagRepo    string
	flagBranch  string
	flagServer  string
	flagUser    string
	flagKey     string
	flagSSHPort int
	flagAppPort int
	flagCleanup bool
)

var rootCmd = &cobra.Command{
	Use:   "shipway",
	Short: "Deploy a containerized application to a remote server",
	Long: `Shipway clones a git repository, provisions a remote Linux server with
docker and nginx over SSH, transfers the working tree, builds and starts
the containers bound to loopback, and fronts them with an nginx reverse
proxy. Re-running against the same server updates the deployment in
place.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagCleanup {
			return runCleanup(cmd)
		}
		return runDeploy(cmd)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent deployment runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the shipway version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shipway %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "git repository URL to deploy")
	rootCmd.PersistentFlags().StringVar(&flagBranch, "branch", "main", "git branch to deploy")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "target server IP or hostname")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "SSH user on the target server")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "path to the SSH private key")
	rootCmd.PersistentFlags().IntVar(&flagSSHPort, "ssh-port", 0, "SSH port (default from config)")
	rootCmd.PersistentFlags().IntVar(&flagAppPort, "app-port", 8080, "loopback port the application listens on")
	rootCmd.Flags().BoolVar(&flagCleanup, "cleanup", false, "tear down the deployment instead of deploying")

	// Bad flags are user input errors, same as bad flag values
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return validationErrf("%v", err)
	})

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// specFromFlags assembles the deployment spec from flags and config
// defaults. Missing values are filled interactively later.
func specFromFlags(cfg *config.ShipwayConfig) *DeploymentSpec {
	sshPort := flagSSHPort
	if sshPort == 0 {
		sshPort = cfg.Remote.SSHPort
	}
	return &DeploymentSpec{
		RepoURL:    flagRepo,
		Branch:     flagBranch,
		ServerAddr: flagServer,
		SSHUser:    flagUser,
		SSHPort:    sshPort,
		KeyPath:    flagKey,
		AppPort:    flagAppPort,
	}
}

// workspaceDir returns the local checkout parent directory.
func workspaceDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "shipway-workspace")
	}
	return filepath.Join(home, ".shipway", "workspace")
}

// spinnerCallbacks bridges driver step events onto a terminal spinner.
func spinnerCallbacks() (StepCallbacks, func()) {
	var spinner *ux.Spinner
	stop := func() {
		if spinner != nil {
			spinner.Stop()
			spinner = nil
		}
	}
	return StepCallbacks{
		OnStart: func(state DeployState) {
			stop()
			spinner = ux.NewSpinner(state.String())
			spinner.Start()
		},
		OnComplete: func(result StepResult) {
			if spinner != nil {
				spinner.StopWithSuccess(result.Name)
				spinner = nil
			}
		},
		OnFail: func(result StepResult) {
			if spinner != nil {
				spinner.StopWithError(fmt.Sprintf("%s: %s", result.Name, result.Reason))
				spinner = nil
			}
		},
	}, stop
}

// runDeploy executes a full deployment run.
func runDeploy(cmd *cobra.Command) error {
	cfg := &config.Global
	spec := specFromFlags(cfg)

	driver := NewDriver(cfg, appLog, &DefaultProcessManager{}, spec, workspaceDir())
	callbacks, stopSpinner := spinnerCallbacks()
	driver.SetCallbacks(callbacks)

	ux.Titlef("Shipway deployment")
	err := driver.Deploy(cmd.Context())
	stopSpinner()

	renderStepSummary(driver.Results())
	renderProbeSummary(driver.Probes())
	recordRun(cfg, driver, spec, "deploy", err)

	if err != nil {
		renderFailure(err, appLog.FilePath())
		return err
	}
	renderSuccess(spec.ServerAddr, time.Since(driver.StartedAt()))
	return nil
}

// runCleanup executes the teardown run.
func runCleanup(cmd *cobra.Command) error {
	cfg := &config.Global
	spec := specFromFlags(cfg)

	driver := NewDriver(cfg, appLog, &DefaultProcessManager{}, spec, workspaceDir())
	callbacks, stopSpinner := spinnerCallbacks()
	driver.SetCallbacks(callbacks)

	ux.Titlef("Shipway cleanup")
	err := driver.Cleanup(cmd.Context())
	stopSpinner()

	renderStepSummary(driver.Results())
	recordRun(cfg, driver, spec, "cleanup", err)

	if err != nil {
		renderFailure(err, appLog.FilePath())
		return err
	}
	ux.Successf("cleanup complete on %s", spec.ServerAddr)
	return nil
}

// recordRun persists the run outcome. History failures never affect
// the run result.
func recordRun(cfg *config.ShipwayConfig, driver *Driver, spec *DeploymentSpec, kind string, runErr error) {
	if !cfg.History.Enabled {
		return
	}
	store, err := OpenHistory(config.ExpandPath(cfg.History.Dir), cfg.History.Keep)
	if err != nil {
		appLog.Warn("history store unavailable", "error", err)
		return
	}
	defer store.Close()

	rec := &RunRecord{
		ID:         uuid.NewString(),
		Kind:       kind,
		StartedAt:  driver.StartedAt(),
		FinishedAt: time.Now(),
		Server:     spec.ServerAddr,
		Repo:       spec.RepoURL,
		Branch:     spec.Branch,
		FinalState: driver.State().String(),
		ExitCode:   ExitCodeFor(runErr),
	}
	if target := driver.Target(); target != nil {
		rec.Mode = target.Mode.String()
	}
	for _, s := range driver.Results() {
		rec.Steps = append(rec.Steps, StepRecord{
			Name:       s.Name,
			Outcome:    s.Outcome.String(),
			Reason:     s.Reason,
			DurationMS: s.Duration.Milliseconds(),
		})
	}
	if err := store.Record(rec); err != nil {
		appLog.Warn("could not record run history", "error", err)
	}
}

// runHistory prints recent runs, newest first.
func runHistory() error {
	cfg := &config.Global
	if !cfg.History.Enabled {
		ux.Mutedf("run history is disabled in configuration")
		return nil
	}
	store, err := OpenHistory(config.ExpandPath(cfg.History.Dir), cfg.History.Keep)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(20)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ux.Mutedf("no recorded runs")
		return nil
	}

	ux.Titlef("Recent runs")
	for _, rec := range records {
		icon := ux.IconSuccess
		if rec.ExitCode != 0 {
			icon = ux.IconError
		}
		fmt.Printf("%s %s  %-8s %-22s %s -> %s (exit %d)\n",
			icon.Render(),
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			rec.Kind,
			rec.Server,
			RepoName(rec.Repo),
			rec.FinalState,
			rec.ExitCode)
	}
	return nil
}
