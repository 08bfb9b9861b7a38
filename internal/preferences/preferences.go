// Package preferences stores the capabilities the connected client advertised.
package preferences

import (
	"sync"

	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

// ClientPreferences is the capability snapshot reporters consult.
type ClientPreferences struct {
	// ProgressReportSupported enables the legacy language/progressReport channel.
	ProgressReportSupported bool
	// WorkDoneProgressSupported allows window/workDoneProgress/create requests.
	WorkDoneProgressSupported bool
}

// Manager guards the current ClientPreferences. The zero value holds no
// preferences until Update is called.
type Manager struct {
	mu    sync.RWMutex
	prefs *ClientPreferences
}

// NewManager seeds the manager with defaults, typically from configuration.
func NewManager(defaults ClientPreferences) *Manager {
	p := defaults
	return &Manager{prefs: &p}
}

// ClientPreferences returns a copy of the current preferences, or nil when
// nothing has been recorded.
func (m *Manager) ClientPreferences() *ClientPreferences {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prefs == nil {
		return nil
	}
	p := *m.prefs
	return &p
}

// Update replaces the stored preferences.
func (m *Manager) Update(prefs ClientPreferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = &prefs
}

// FromInitialize derives preferences from the client's initialize params.
func FromInitialize(params protocol.InitializeParams) ClientPreferences {
	return ClientPreferences{
		ProgressReportSupported:   params.InitializationOptions.ExtendedClientCapabilities.ProgressReportProvider,
		WorkDoneProgressSupported: params.Capabilities.Window.WorkDoneProgress,
	}
}
