package core

import (
	"go.uber.org/zap"
)

// CallCount is a snapshot of a module's call counters. Calls reports the delta since the snapshot.
type CallCount struct {
	counter interface{ TotalCallCount(name string) int64 }
	module  string
	initial map[string]int64
}

// Calls returns how many times name has been called since the snapshot was taken.
// Names outside the interface report 0.
func (c *CallCount) Calls(name string) int64 {
	start, ok := c.initial[name]
	if !ok {
		Logger().Warn("call count requested for unknown function",
			zap.String("module", c.module),
			zap.String("function", name))

		return 0
	}

	return c.counter.TotalCallCount(name) - start
}

func newCallCount(m *StubbedModule) *CallCount {
	names := m.iface.Names()
	c := &CallCount{
		counter: m,
		module:  m.name,
		initial: make(map[string]int64, len(names)),
	}

	for _, name := range names {
		c.initial[name] = m.TotalCallCount(name)
	}

	return c
}
