// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"testing"
)

func TestSpinner_StartStopIdempotent(t *testing.T) {
	s := NewSpinner("working")
	s.plain = true // never animate under `go test`

	s.Start()
	s.Start() // second start is a no-op
	s.Stop()
	s.Stop() // second stop is a no-op
}

func TestSpinner_UpdateMessage(t *testing.T) {
	s := NewSpinner("step one")
	s.plain = true
	s.Start()
	s.UpdateMessage("step two")
	s.mu.Lock()
	got := s.message
	s.mu.Unlock()
	if got != "step two" {
		t.Errorf("message = %q, want %q", got, "step two")
	}
	s.Stop()
}

func TestWithSpinner_PropagatesError(t *testing.T) {
	want := errors.New("remote build failed")
	err := WithSpinner("building image", func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("WithSpinner error = %v, want %v", err, want)
	}

	if err := WithSpinner("noop", func() error { return nil }); err != nil {
		t.Errorf("WithSpinner success returned %v", err)
	}
}

func TestIconRender_NonEmpty(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		if icon.Render() == "" {
			t.Errorf("icon %q rendered empty", string(icon))
		}
	}
}
