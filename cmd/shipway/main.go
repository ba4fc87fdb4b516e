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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"

	"github.com/jinterlante1206/AleutianShipway/cmd/shipway/config"
	"github.com/jinterlante1206/AleutianShipway/pkg/logging"
)

func main() {
	os.Exit(run())
}

// run is the real main; separated so deferred cleanup executes before
// the process exits. This is the only place that decides the exit
// status.
func run() int {
	// Wipe every enclave no matter how we leave
	defer memguard.Purge()

	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return ExitGeneral
	}

	appLog = logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Logging.Level),
		LogDir:  config.Global.Logging.Dir,
		Service: "shipway",
	})
	defer appLog.Close()

	// Ctrl-C cancels the run context; in-flight steps observe the
	// cancellation and the interrupted exit path takes over.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return ExitCodeFor(err)
	}
	return ExitSuccess
}
