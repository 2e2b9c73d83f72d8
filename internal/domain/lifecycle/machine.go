package lifecycle

// StateMachine tracks the current status of one invoice and validates transitions
type StateMachine interface {
	// Status returns the current status
	Status() Status

	// CanFire returns true if the trigger is permitted in the current status
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, moving to the target status if allowed
	Fire(trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current status
	PermittedTriggers() []Trigger
}
