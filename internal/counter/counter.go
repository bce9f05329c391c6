// Package counter persists the monotonically increasing recording
// sequence number across application restarts as a single integer in a
// text file, lazily loaded on first use and cached in memory thereafter.
package counter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

// Counter is a lazy-cached, file-backed integer. The zero value is not
// usable; construct with New.
type Counter struct {
	guard *pathguard.Guard
	path  string

	mu     sync.Mutex
	value  int
	loaded bool
}

// New returns a Counter backed by path (relative to guard's base
// directory), reading nothing until the first Get or Inc call.
func New(guard *pathguard.Guard, path string) *Counter {
	return &Counter{guard: guard, path: path}
}

// Get returns the current counter value, reading it from disk (creating
// it with an initial value of 0 if absent) on first call only.
func (c *Counter) Get() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked()
}

func (c *Counter) getLocked() (int, error) {
	if c.loaded {
		return c.value, nil
	}

	exists, err := c.guard.Exists(c.path)
	if err != nil {
		return 0, fmt.Errorf("checking counter file %s: %w", c.path, err)
	}
	if !exists {
		if err := c.guard.WriteFile(c.path, []byte("0"), 0o644); err != nil {
			return 0, fmt.Errorf("creating counter file %s: %w", c.path, err)
		}
	}

	data, err := c.guard.ReadFile(c.path)
	if err != nil {
		return 0, fmt.Errorf("reading counter file %s: %w", c.path, err)
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing counter file %s: %w", c.path, err)
	}

	c.value = v
	c.loaded = true
	return c.value, nil
}

// Inc loads the counter if needed, increments it by one, persists the new
// value, and returns it.
func (c *Counter) Inc() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.getLocked(); err != nil {
		return 0, err
	}
	c.value++

	if err := c.guard.WriteFile(c.path, []byte(strconv.Itoa(c.value)), 0o644); err != nil {
		return 0, fmt.Errorf("writing counter file %s: %w", c.path, err)
	}
	return c.value, nil
}
