package app

import (
	"github.com/O-HAM-MA/apartner-chat/config"
	"github.com/O-HAM-MA/apartner-chat/internal/domain"
	"github.com/O-HAM-MA/apartner-chat/internal/gateway"
	"github.com/O-HAM-MA/apartner-chat/internal/stomp"
	"github.com/O-HAM-MA/apartner-chat/internal/tracker"
	"github.com/O-HAM-MA/apartner-chat/pkg/logger"
	"github.com/O-HAM-MA/apartner-chat/service"
)

// App wires one actor's chat stack: gateway client, realtime transport,
// unread tracker, and the session that owns them.
type App struct {
	cfg       config.Config
	logger    logger.Logger
	gateway   *gateway.Client
	transport *stomp.Client
	tracker   *tracker.Tracker
	session   *service.Session
}

// New builds the stack for the given actor. Construction is tied to the
// actor's login lifecycle: one App per signed-in user, torn down on logout.
func New(cfg config.Config, actor domain.Actor) *App {
	logg := logger.NewLogger(cfg.LogLevel)

	gw := gateway.NewClient(cfg, logg)
	tr := stomp.NewClient(cfg, logg)
	trk := tracker.New(gw, cfg.UnreadDebounce, logg)
	sess := service.NewSession(cfg, actor, gw, tr, trk, logg)

	logg.WithModule("app").WithFields(map[string]interface{}{
		"actor": actor.ID,
		"role":  actor.Role,
	}).Infof("chat stack initialized")

	return &App{
		cfg:       cfg,
		logger:    logg,
		gateway:   gw,
		transport: tr,
		tracker:   trk,
		session:   sess,
	}
}

func (a *App) Session() *service.Session { return a.session }
func (a *App) Tracker() *tracker.Tracker { return a.tracker }
func (a *App) Logger() logger.Logger     { return a.logger }

// Shutdown closes the realtime connection. Gateway calls need no teardown.
func (a *App) Shutdown() {
	a.logger.WithModule("app").Infof("shutting down")
	a.transport.Close()
}
