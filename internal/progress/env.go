package progress

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workdone-progress/internal/clock/system"
	"github.com/JakeFAU/workdone-progress/internal/id/uuid"
)

// DefaultThrottle is the minimum gap between two non-terminal emissions.
const DefaultThrottle = 200 * time.Millisecond

const defaultServerName = "Language Server"

// Env carries the collaborators shared by every reporter. A nil Client
// disables reporting; a nil Preferences disables the legacy report channel.
type Env struct {
	Client      Client
	Preferences Preferences
	Clock       Clock
	IDs         IDGenerator
	Emitter     Emitter
	Logger      *zap.Logger
	// BaseContext bounds outbound calls and the handshake wait.
	BaseContext context.Context
	// Throttle is the minimum interval between emissions; zero or negative
	// selects DefaultThrottle. Factory.SetThrottle can lower it to zero.
	Throttle time.Duration
	// ServerName appears in legacy "Starting ..." status messages.
	ServerName string
}

func (e Env) withDefaults() Env {
	if e.Clock == nil {
		e.Clock = system.New()
	}
	if e.IDs == nil {
		e.IDs = uuid.New()
	}
	if e.Emitter == nil {
		e.Emitter = nopEmitter{}
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.BaseContext == nil {
		e.BaseContext = context.Background()
	}
	if e.Throttle <= 0 {
		e.Throttle = DefaultThrottle
	}
	if e.ServerName == "" {
		e.ServerName = defaultServerName
	}
	return e
}

var fallbackTokens atomic.Int64

func (e Env) newToken() string {
	token, err := e.IDs.NewID()
	if err != nil || token == "" {
		token = fmt.Sprintf("progress-%d", fallbackTokens.Add(1))
		e.Logger.Warn("token generation failed; using fallback", zap.Error(err), zap.String("token", token))
	}
	return token
}

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}
