package bootstrap

import (
	"fmt"
	"sort"
	"sync"

	"fsgate/internal/shared/logging"
)

// Stage is a single initialization step during startup.
type Stage struct {
	Name     string
	Required bool // failure aborts startup; otherwise recorded as degraded
	Init     func() error
}

// Degraded tracks optional components that failed to start.
type Degraded struct {
	mu         sync.RWMutex
	components map[string]string
}

// NewDegraded creates an empty tracker.
func NewDegraded() *Degraded {
	return &Degraded{components: make(map[string]string)}
}

// Record marks name as degraded.
func (d *Degraded) Record(name, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components[name] = reason
}

// Map returns a snapshot of degraded components.
func (d *Degraded) Map() map[string]string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.components))
	for k, v := range d.components {
		out[k] = v
	}
	return out
}

// Names lists degraded components in sorted order.
func (d *Degraded) Names() []string {
	m := d.Map()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunStages executes stages in order. Required stages abort on error;
// optional ones are recorded and startup continues.
func RunStages(stages []Stage, degraded *Degraded, logger logging.Logger) error {
	logger = logging.OrNop(logger)
	for _, stage := range stages {
		logger.Debug("[Bootstrap] stage %s (required=%t)", stage.Name, stage.Required)
		if err := stage.Init(); err != nil {
			if stage.Required {
				return fmt.Errorf("required stage %q failed: %w", stage.Name, err)
			}
			logger.Warn("[Bootstrap] optional stage %q failed: %v (continuing degraded)", stage.Name, err)
			if degraded != nil {
				degraded.Record(stage.Name, err.Error())
			}
		}
	}
	return nil
}
