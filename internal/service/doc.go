// Package service runs dispatch sweeps, once or on a schedule.
//
// A sweep is one pass of the Dispatcher over every dataset:
//
//	discover.Scan -> toolconf.Load -> launch.Launcher.Launch (per tool spec)
//
// Launches are sequential and fire-and-forget, the sweep never waits for a
// job. Each sweep gets a run id which is written to the run history banner
// and attached to every log record of the sweep.
//
// The Supervisor owns the event loop of the serve mode. It triggers a sweep
// on every activation of the gocron scheduler. Sweeps never overlap: they
// run on the loop goroutine and an activation arriving during a sweep is
// coalesced with the pending one. In manual mode the Supervisor runs a
// single sweep and returns.
package service
