// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package powermode

import (
	"context"
	"testing"
)

func TestFixed(t *testing.T) {
	ctx := context.Background()
	if !Fixed(true).LowPowerMode(ctx) {
		t.Error("Fixed(true) should report low power")
	}
	if Fixed(false).LowPowerMode(ctx) {
		t.Error("Fixed(false) should report high power")
	}
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()
	var s Switch
	if s.LowPowerMode(ctx) {
		t.Error("zero Switch should report high power")
	}
	s.Set(true)
	if !s.LowPowerMode(ctx) {
		t.Error("Switch should report low power after Set(true)")
	}
	s.Set(false)
	if s.LowPowerMode(ctx) {
		t.Error("Switch should report high power after Set(false)")
	}
}

func TestSystem_DoesNotPanic(t *testing.T) {
	_ = System().LowPowerMode(context.Background())
}
