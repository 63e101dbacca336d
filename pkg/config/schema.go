// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

// Schema constrains the shape of coldmesh.yaml. Unknown keys are rejected.
const Schema = `
#NodeID:   =~"^[A-Za-z0-9]{6}$"
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Config: {
	node?: {
		id?:              #NodeID
		passphrase?:      string
		trusted_clock?:   bool
		probes?:          int & >=1 & <=3
		announce_roster?: bool
	}
	wifi?: {
		ssid?: =~"^.{1,32}$"
		pass?: =~"^.{0,63}$"
	}
	roster?: [...#NodeID]
	silence_until?:    int & >=0
	last_web_checkin?: int & >=0
	radio?: {
		port?:          string
		baud?:          int & >0
		url?:           =~"^wss?://"
		username?:      string
		no_ssl_verify?: bool
		tx_timeout?:    #Duration
	}
	sensor?: {
		driver?:  "w1" | "sim"
		root?:    string
		devices?: [...string]
	}
	timing?: {
		tick?:      #Duration
		read?:      #Duration
		broadcast?: #Duration
		jitter?:    #Duration
		monitor?:   #Duration
		freshness?: #Duration
		log?:       #Duration
	}
	alarm?: {
		day_start_hour?: int & >=0 & <=23
		day_end_hour?:   int & >=0 & <=24
		silence?:        #Duration
		timezone?:       string
		bell?:           bool
	}
	log?: {
		level?:  "debug" | "info" | "warn" | "error"
		format?: "text" | "json"
		csv?:    string
	}
	admin?: {
		listen?: string
	}
	crypto?: {
		iv_source?: "fast" | "secure"
	}
}
`

// ValidateSchema checks raw YAML against Schema
func ValidateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(Schema)
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}

	file, err := yaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("cannot parse YAML config: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if configVal.Err() != nil {
		return fmt.Errorf("cannot build YAML config: %w", configVal.Err())
	}

	final := schemaVal.LookupPath(cue.ParsePath("#Config")).Unify(configVal)
	if final.Err() != nil {
		return fmt.Errorf("%w: schema unify failed: %w", ErrInvalidConfig, final.Err())
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: schema validation failed: %w", ErrInvalidConfig, err)
	}
	return nil
}
