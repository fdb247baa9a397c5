package engine

import (
	"github.com/robfig/cron/v3"
)

// InitializeSchedules starts all the cron jobs (currently just the idle
// session sweeper)
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	c := cron.New()
	var sweepJob cron.Job
	sweepJob = cron.FuncJob(func() { serverHandler.sweepIdleSessions() })
	sweepJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(sweepJob) //ensure we don't kick off another if old one is still running
	c.AddJob("@every 1m", sweepJob)
	Logger.Info("Adding idle session sweeper",
		"idle_minutes", serverHandler.ServerConfig.SessionIdleMinutes)
	c.Start()
	return c
}

// sweepIdleSessions closes sessions nobody has touched within the configured
// idle window, releasing their documents and caches.
func (serverHandler *ServerHandler) sweepIdleSessions() {
	maxIdle := serverHandler.ServerConfig.SessionIdleTimeout()
	if maxIdle <= 0 {
		return
	}
	if closed := serverHandler.Sessions.SweepIdle(maxIdle); closed > 0 {
		Logger.Info("Swept idle sessions", "closed", closed, "remaining", serverHandler.Sessions.Len())
	}
}
