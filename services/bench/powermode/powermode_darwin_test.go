// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build darwin

package powermode

import "testing"

func TestParsePmset(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want bool
	}{
		{"low power on", "System-wide power settings:\n lowpowermode         1\n sleep 1\n", true},
		{"low power off", " lowpowermode         0\n", false},
		{"newer key", " powermode 1\n", true},
		{"absent", " sleep 1\n displaysleep 10\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parsePmset([]byte(tt.out)); got != tt.want {
				t.Errorf("parsePmset() = %v, want %v", got, tt.want)
			}
		})
	}
}
