package nyx

import "fmt"

// Config holds the engine's tunables: compiler passes, GC thresholds,
// and VM capacities, keyed by dotted path. Accessors panic on a missing
// key or a type mismatch — a misspelled knob is a wiring bug in the
// host, not a runtime condition worth limping through.
type Config map[string]any

// NewConfig returns a Config primed with the defaults the compiler,
// interpreter and memory manager expect to find.
func NewConfig() *Config {
	m := Config{
		"compiler.typecheck": false,
		"compiler.optimize":  1,

		"gc.promotion_age":  3,
		"gc.sweep_batch":    64,
		"gc.growth_factor":  2,
		"gc.min_heap_bytes": 1 << 16,

		"vm.stack_capacity": 4096,
		"vm.frame_capacity": 256,

		"module.packages_env": "NYX_PACKAGES",
	}
	return &m
}

func (c *Config) SetBool(path string, v bool)     { (*c)[path] = v }
func (c *Config) SetInt(path string, v int)       { (*c)[path] = v }
func (c *Config) SetString(path string, v string) { (*c)[path] = v }

func (c *Config) lookup(path string) any {
	v, ok := (*c)[path]
	if !ok {
		panic(fmt.Sprintf("setting `%s` does not exist", path))
	}
	return v
}

func (c *Config) GetBool(path string) bool {
	raw := c.lookup(path)
	v, ok := raw.(bool)
	if !ok {
		panic(fmt.Sprintf("setting `%s` holds a %T, not a bool", path, raw))
	}
	return v
}

func (c *Config) GetInt(path string) int {
	raw := c.lookup(path)
	v, ok := raw.(int)
	if !ok {
		panic(fmt.Sprintf("setting `%s` holds a %T, not an int", path, raw))
	}
	return v
}

func (c *Config) GetString(path string) string {
	raw := c.lookup(path)
	v, ok := raw.(string)
	if !ok {
		panic(fmt.Sprintf("setting `%s` holds a %T, not a string", path, raw))
	}
	return v
}

// Validate rejects knob values the engine cannot run with, so a bad
// override fails at VM construction instead of surfacing later as a
// heap-accounting anomaly or an unschedulable collection.
func (c *Config) Validate() error {
	if n := c.GetInt("gc.promotion_age"); n < 1 {
		return fmt.Errorf("gc.promotion_age must be at least 1, got %d", n)
	}
	if n := c.GetInt("gc.sweep_batch"); n < 1 {
		return fmt.Errorf("gc.sweep_batch must be at least 1, got %d", n)
	}
	if n := c.GetInt("gc.growth_factor"); n < 2 {
		return fmt.Errorf("gc.growth_factor must be at least 2, got %d", n)
	}
	if n := c.GetInt("gc.min_heap_bytes"); n < 1 {
		return fmt.Errorf("gc.min_heap_bytes must be positive, got %d", n)
	}
	if n := c.GetInt("vm.stack_capacity"); n < 16 {
		return fmt.Errorf("vm.stack_capacity must be at least 16, got %d", n)
	}
	if n := c.GetInt("vm.frame_capacity"); n < 2 {
		return fmt.Errorf("vm.frame_capacity must be at least 2, got %d", n)
	}
	return nil
}
