// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

// SinglePrimeLimit is the upper bound scanned by RunSingle.
const SinglePrimeLimit = 100_000

// CountPrimes returns the number of primes in [2, limit] by trial division
// against every smaller integer.
//
// The scan is pure integer ALU work with no memory traffic. Workers call it
// in batches and count completed batches as work units.
func CountPrimes(limit int) uint64 {
	var primes uint64
	for n := 2; n <= limit; n++ {
		d := 2
		for d < n && n%d != 0 {
			d++
		}
		if d == n {
			primes++
		}
	}
	return primes
}
