package lifecycle

import (
	"fmt"
	"sort"
)

// Builder builds a configured state machine
type Builder interface {
	// Configure returns the configuration for transitions leaving the given status
	Configure(status Status) StatusConfiguration

	// Build creates a new state machine instance starting at the given status
	Build(initial Status) StateMachine
}

// StatusConfiguration configures transitions for a specific status
type StatusConfiguration interface {
	// Permit allows a trigger to move to the target status
	Permit(trigger Trigger, to Status) StatusConfiguration
}

type statusConfig struct {
	from        Status
	transitions map[Trigger]Status
}

type builder struct {
	configurations map[Status]*statusConfig
}

type stateMachine struct {
	current        Status
	configurations map[Status]*statusConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() Builder {
	return &builder{
		configurations: make(map[Status]*statusConfig),
	}
}

// Configure returns the configuration for the given status
func (b *builder) Configure(status Status) StatusConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid status: %s", status))
	}

	config, exists := b.configurations[status]
	if !exists {
		config = &statusConfig{
			from:        status,
			transitions: make(map[Trigger]Status),
		}
		b.configurations[status] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial status
func (b *builder) Build(initial Status) StateMachine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial status: %s", initial))
	}

	// Copy so machines built earlier are not affected by later Configure calls
	configsCopy := make(map[Status]*statusConfig, len(b.configurations))
	for status, config := range b.configurations {
		transitions := make(map[Trigger]Status, len(config.transitions))
		for trigger, to := range config.transitions {
			transitions[trigger] = to
		}
		configsCopy[status] = &statusConfig{from: status, transitions: transitions}
	}

	return &stateMachine{
		current:        initial,
		configurations: configsCopy,
	}
}

// Permit allows a trigger to move to the target status
func (c *statusConfig) Permit(trigger Trigger, to Status) StatusConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target status: %s", to))
	}
	if existing, ok := c.transitions[trigger]; ok && existing != to {
		panic(fmt.Sprintf("trigger %s from %s already targets %s", trigger, c.from, existing))
	}

	c.transitions[trigger] = to
	return c
}

func (m *stateMachine) Status() Status {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	config, exists := m.configurations[m.current]
	if !exists {
		return false
	}
	_, ok := config.transitions[trigger]
	return ok
}

func (m *stateMachine) Fire(trigger Trigger) error {
	config, exists := m.configurations[m.current]
	if !exists {
		return fmt.Errorf("%w: cannot fire %s from %s (no configuration)", ErrInvalidTransition, trigger, m.current)
	}

	to, ok := config.transitions[trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	m.current = to
	return nil
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	config, exists := m.configurations[m.current]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	return triggers
}
