// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// Exit Status Taxonomy
// =============================================================================

// Exit statuses are a stable contract consumed by wrapper scripts and CI.
// Do not renumber.
const (
	ExitSuccess       = 0   // deployment (or cleanup) completed
	ExitGeneral       = 1   // unclassified error
	ExitValidation    = 2   // bad user input, missing descriptor, missing key file
	ExitConnectivity  = 3   // SSH authentication or transport failure
	ExitDeployment    = 4   // provisioning, transfer, build, or run failure
	ExitConfiguration = 5   // proxy configuration failure
	ExitInterrupted   = 130 // user interruption (SIGINT convention)
)

// FailureCategory classifies a Fatal error for exit-status mapping.
type FailureCategory int

const (
	CategoryUnclassified FailureCategory = iota
	CategoryValidation
	CategoryConnectivity
	CategoryDeployment
	CategoryConfiguration
	CategoryInterrupted
)

// String returns the category name used in logs and summaries.
func (c FailureCategory) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryConnectivity:
		return "connectivity"
	case CategoryDeployment:
		return "deployment"
	case CategoryConfiguration:
		return "configuration"
	case CategoryInterrupted:
		return "interrupted"
	default:
		return "unclassified"
	}
}

// ExitCode maps the category to its process exit status.
func (c FailureCategory) ExitCode() int {
	switch c {
	case CategoryValidation:
		return ExitValidation
	case CategoryConnectivity:
		return ExitConnectivity
	case CategoryDeployment:
		return ExitDeployment
	case CategoryConfiguration:
		return ExitConfiguration
	case CategoryInterrupted:
		return ExitInterrupted
	default:
		return ExitGeneral
	}
}

// =============================================================================
// Categorized Errors
// =============================================================================

// CategorizedError attaches a FailureCategory to an error so the driver
// can map any Fatal step failure to the right exit status.
//
// # Example
//
//	return validationErrf("no deployment descriptor found in %s", dir)
//
//	var catErr *CategorizedError
//	if errors.As(err, &catErr) {
//	    os.Exit(catErr.Category.ExitCode())
//	}
type CategorizedError struct {
	// Category is the failure classification.
	Category FailureCategory

	// Err is the underlying error.
	Err error
}

// Error returns the underlying error message.
func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

// Unwrap enables errors.Is and errors.As through the chain.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// categorize wraps err with the given category. If err is already
// categorized, the existing (more specific) category wins.
func categorize(category FailureCategory, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{Category: category, Err: err}
}

func validationErrf(format string, args ...any) error {
	return &CategorizedError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

func connectivityErrf(format string, args ...any) error {
	return &CategorizedError{Category: CategoryConnectivity, Err: fmt.Errorf(format, args...)}
}

func deploymentErrf(format string, args ...any) error {
	return &CategorizedError{Category: CategoryDeployment, Err: fmt.Errorf(format, args...)}
}

func configurationErrf(format string, args ...any) error {
	return &CategorizedError{Category: CategoryConfiguration, Err: fmt.Errorf(format, args...)}
}

// CategoryOf extracts the failure category from anywhere in the error
// chain. Context cancellation maps to CategoryInterrupted; anything
// unrecognized maps to CategoryUnclassified.
func CategoryOf(err error) FailureCategory {
	if err == nil {
		return CategoryUnclassified
	}
	if errors.Is(err, context.Canceled) {
		return CategoryInterrupted
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}
	return CategoryUnclassified
}
