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

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// pmsetTimeout bounds the pmset call so a wedged subprocess cannot stall
// a sampling tick.
const pmsetTimeout = 200 * time.Millisecond

func systemLowPower(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pmsetTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pmset", "-g").Output()
	if err != nil {
		return false
	}
	return parsePmset(out)
}

// parsePmset looks for "lowpowermode 1" (or "powermode 1" on newer
// releases) in `pmset -g` output.
func parsePmset(out []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		if (fields[0] == "lowpowermode" || fields[0] == "powermode") && fields[1] == "1" {
			return true
		}
	}
	return false
}
