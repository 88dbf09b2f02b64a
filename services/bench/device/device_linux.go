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

package device

import (
	"context"
	"os"
)

// Model sources in preference order. DMI covers x86 laptops and desktops,
// the device tree covers ARM boards.
var linuxModelFiles = []string{
	"/sys/devices/virtual/dmi/id/product_name",
	"/proc/device-tree/model",
}

func platformProvider() Provider {
	providers := make([]Provider, 0, len(linuxModelFiles))
	for _, path := range linuxModelFiles {
		providers = append(providers, FileProvider(path))
	}
	return Chain(providers...)
}

// FileProvider reads the model from a sysfs-style file.
func FileProvider(path string) Provider {
	return ProviderFunc(func(context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}
