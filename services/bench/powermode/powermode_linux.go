// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build linux

package powermode

import (
	"context"
	"os"
	"strings"
)

// platformProfilePath is the ACPI platform profile. power-profiles-daemon
// maps its "power-saver" profile onto "low-power" here.
var platformProfilePath = "/sys/firmware/acpi/platform_profile"

// lowPowerProfiles are the platform_profile values treated as low power.
var lowPowerProfiles = map[string]bool{
	"low-power": true,
	"quiet":     true,
	"cool":      true,
}

func systemLowPower(context.Context) bool {
	return profileIsLowPower(platformProfilePath)
}

func profileIsLowPower(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return lowPowerProfiles[strings.TrimSpace(string(data))]
}
