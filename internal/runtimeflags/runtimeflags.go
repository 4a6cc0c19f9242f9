// Copyright 2025 The RelayMCP Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package runtimeflags configures compatibility and debug parameters via
// the RELAYMCPDEBUG environment variable.
//
// The value is a comma-separated list of key=value pairs, e.g.
// RELAYMCPDEBUG=sselog=1,strictjson=0.
package runtimeflags

import (
	"fmt"
	"os"
	"strings"
)

const envKey = "RELAYMCPDEBUG"

var params map[string]string

func init() {
	var err error
	params, err = parse(os.Getenv(envKey))
	if err != nil {
		panic(err)
	}
}

// Value returns the value of the named parameter, or "" if unset.
func Value(key string) string {
	return params[key]
}

func parse(env string) (map[string]string, error) {
	if env == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for part := range strings.SplitSeq(env, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%s: invalid format: %q", envKey, part)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
