package preferences

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

func TestManagerNilAndZeroValue(t *testing.T) {
	t.Parallel()

	var nilManager *Manager
	require.Nil(t, nilManager.ClientPreferences())

	var zero Manager
	require.Nil(t, zero.ClientPreferences())
	zero.Update(ClientPreferences{ProgressReportSupported: true})
	require.True(t, zero.ClientPreferences().ProgressReportSupported)
}

func TestManagerReturnsCopy(t *testing.T) {
	t.Parallel()

	m := NewManager(ClientPreferences{ProgressReportSupported: true})
	got := m.ClientPreferences()
	got.ProgressReportSupported = false
	require.True(t, m.ClientPreferences().ProgressReportSupported)
}

func TestFromInitialize(t *testing.T) {
	t.Parallel()

	var params protocol.InitializeParams
	params.Capabilities.Window.WorkDoneProgress = true
	params.InitializationOptions.ExtendedClientCapabilities.ProgressReportProvider = true

	prefs := FromInitialize(params)
	require.Equal(t, ClientPreferences{ProgressReportSupported: true, WorkDoneProgressSupported: true}, prefs)
}
