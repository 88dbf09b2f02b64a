// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package device identifies the hardware model a run executed on.
//
// The identifier is written on every CSV row so results from different
// machines can be concatenated. Lookup failures are never fatal: Resolve
// falls back to Unknown.
package device

import (
	"context"
	"errors"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Unknown is the identifier used when the model cannot be determined.
const Unknown = "unknown"

// ErrUnavailable is returned by providers that cannot determine the model.
var ErrUnavailable = errors.New("device identity unavailable")

// Provider returns a short hardware model identifier such as "Mac14,2" or
// "ThinkPad X1 Carbon Gen 11".
type Provider interface {
	ModelIdentifier(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

// ModelIdentifier calls f.
func (f ProviderFunc) ModelIdentifier(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a Provider that always reports model. Used for config
// overrides and tests.
func Static(model string) Provider {
	return ProviderFunc(func(context.Context) (string, error) {
		return model, nil
	})
}

// Resolve queries p and returns Unknown when p is nil, fails, or returns a
// blank identifier. Surrounding whitespace and NUL bytes are trimmed.
func Resolve(ctx context.Context, p Provider) string {
	if p == nil {
		return Unknown
	}
	model, err := p.ModelIdentifier(ctx)
	if err != nil {
		return Unknown
	}
	model = clean(model)
	if model == "" {
		return Unknown
	}
	return model
}

// Chain tries each provider in order and returns the first non-blank answer.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (string, error) {
		var errs []error
		for _, p := range providers {
			model, err := p.ModelIdentifier(ctx)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if model = clean(model); model != "" {
				return model, nil
			}
		}
		if len(errs) > 0 {
			return "", errors.Join(append([]error{ErrUnavailable}, errs...)...)
		}
		return "", ErrUnavailable
	})
}

// CPUModel reports the CPU model name via gopsutil, e.g.
// "13th Gen Intel(R) Core(TM) i7-1370P". Used as the last fallback when the
// platform exposes no system model.
func CPUModel() Provider {
	return ProviderFunc(func(ctx context.Context) (string, error) {
		infos, err := cpu.InfoWithContext(ctx)
		if err != nil {
			return "", err
		}
		for _, info := range infos {
			if name := clean(info.ModelName); name != "" {
				return name, nil
			}
		}
		return "", ErrUnavailable
	})
}

// Default returns the platform provider chain.
func Default() Provider {
	return Chain(platformProvider(), CPUModel())
}

func clean(s string) string {
	return strings.Trim(s, " \t\r\n\x00")
}
