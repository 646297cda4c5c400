// Package params defines the engine's typed, TOML-loadable configuration.
// Config is resolved once at create_engine time and is immutable for the
// life of the engine; reconfiguring means creating a new engine.
package params

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// EngineParams holds every tunable the core exposes. Zero-value fields
// loaded from an incomplete TOML file are filled in from Defaults by
// ApplyDefaults.
type EngineParams struct {
	// Heap
	BlockSize            uint64 `toml:"block_size"`             // bytes per block (spec: 16 KiB)
	LargeObjectThreshold  uint64 `toml:"large_object_threshold"` // spec: ~8 KiB
	GCTriggerBytes        uint64 `toml:"gc_trigger_bytes"`       // bytes allocated since last cycle that trigger a new one
	GCWorkers             int    `toml:"gc_workers"`             // parallel marking worker count

	// Inline caches
	ICCapacity int `toml:"ic_capacity"` // entries per inline-cache site; megamorphic after 2x this many consecutive evictions (spec: 4 is typical)

	// Interpreter
	OperandStackLimit uint64 `toml:"operand_stack_limit"` // max operand-stack words per call stack
	CallStackDepth    uint64 `toml:"call_stack_depth"`    // max nested call frames

	// Rooting
	ShadowStackFrameSize int `toml:"shadow_stack_frame_size"` // slots per shadow-stack frame
}

// Defaults mirrors the numbers named or implied by the specification.
func Defaults() EngineParams {
	return EngineParams{
		BlockSize:            16 * 1024,
		LargeObjectThreshold: 8 * 1024,
		GCTriggerBytes:       4 * 1024 * 1024,
		GCWorkers:            4,
		ICCapacity:           4,
		OperandStackLimit:    64 * 1024,
		CallStackDepth:       4096,
		ShadowStackFrameSize: 16,
	}
}

// ApplyDefaults fills every zero-valued field of p from Defaults, in
// place, and returns p for chaining.
func ApplyDefaults(p *EngineParams) *EngineParams {
	d := Defaults()
	if p.BlockSize == 0 {
		p.BlockSize = d.BlockSize
	}
	if p.LargeObjectThreshold == 0 {
		p.LargeObjectThreshold = d.LargeObjectThreshold
	}
	if p.GCTriggerBytes == 0 {
		p.GCTriggerBytes = d.GCTriggerBytes
	}
	if p.GCWorkers == 0 {
		p.GCWorkers = d.GCWorkers
	}
	if p.ICCapacity == 0 {
		p.ICCapacity = d.ICCapacity
	}
	if p.OperandStackLimit == 0 {
		p.OperandStackLimit = d.OperandStackLimit
	}
	if p.CallStackDepth == 0 {
		p.CallStackDepth = d.CallStackDepth
	}
	if p.ShadowStackFrameSize == 0 {
		p.ShadowStackFrameSize = d.ShadowStackFrameSize
	}
	return p
}

// LoadFile reads an EngineParams from a TOML file at path, applying
// defaults to any field the file leaves unset. A missing file is not an
// error: it simply yields Defaults().
func LoadFile(path string) (EngineParams, error) {
	p := EngineParams{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Defaults(), nil
	}
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return EngineParams{}, fmt.Errorf("params: decoding %s: %w", path, err)
	}
	return *ApplyDefaults(&p), nil
}

// Validate reports a descriptive error for any parameter combination the
// rest of the core cannot operate under.
func (p EngineParams) Validate() error {
	if p.ICCapacity < 1 {
		return fmt.Errorf("params: ic_capacity must be >= 1, got %d", p.ICCapacity)
	}
	if p.GCWorkers < 1 {
		return fmt.Errorf("params: gc_workers must be >= 1, got %d", p.GCWorkers)
	}
	if p.BlockSize == 0 {
		return fmt.Errorf("params: block_size must be > 0")
	}
	return nil
}
