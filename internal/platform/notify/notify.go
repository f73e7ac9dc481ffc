// Package notify surfaces non-blocking warnings to the GM's desktop.
package notify

import (
	"log"

	"github.com/gen2brain/beeep"
)

const appTitle = "GM Assistant"

// Notifier delivers a non-blocking warning to the user.
type Notifier interface {
	Warn(message string)
}

// Desktop sends warnings as desktop notifications, falling back to the log
// when the notification daemon is unavailable.
type Desktop struct{}

// Warn implements Notifier.
func (Desktop) Warn(message string) {
	if err := beeep.Notify(appTitle, message, ""); err != nil {
		log.Printf("notify: %s (notification failed: %v)", message, err)
	}
}

// Log writes warnings to the process log only. Used in headless runs and
// tests.
type Log struct{}

// Warn implements Notifier.
func (Log) Warn(message string) {
	log.Printf("warn: %s", message)
}
