// Package power controls the module's supply rails: three idempotent
// operations (off, t30, t30+t15). ManualPower prompts the operator to
// flip switches by hand; GPIOAgent drives real relay lines via
// go-gpiocdev.
package power

// Agent cycles module power around a programming session: off at
// session start, then T30 to catch the bootloader, off again at
// session end unless the caller asks otherwise.
type Agent interface {
	// Off removes all module power.
	Off() error
	// T30 applies the always-on rail only; the module enters its
	// bootloader and, if idle, quietly times out into the application.
	T30() error
	// T30T15 additionally applies the ignition rail, so the module
	// runs its application.
	T30T15() error
}
