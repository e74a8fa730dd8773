package alerting

import (
	"testing"

	"github.com/codycody31/rcon-sentinel/internal/retrycontroller"
)

func TestOnTransitionIgnoresNonDormantChurn(t *testing.T) {
	// A zero-value notifier has no session; OnTransition must return before
	// touching it for any transition that doesn't enter or leave DORMANT.
	n := &DiscordNotifier{}

	tests := []struct {
		name string
		from retrycontroller.Status
		to   retrycontroller.Status
	}{
		{"healthy to backing off", retrycontroller.StatusHealthy, retrycontroller.StatusBackingOff},
		{"backing off to healthy", retrycontroller.StatusBackingOff, retrycontroller.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("OnTransition touched the nil session for a non-dormant transition: %v", r)
				}
			}()
			n.OnTransition(1, tt.from, tt.to)
		})
	}
}
