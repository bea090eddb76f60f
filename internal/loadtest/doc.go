// Package loadtest runs simulated users against a site and aggregates
// what they record.
//
// A run is described by a Config and a UserFactory. The Framework starts
// Config.Users users at Config.HatchRate per second. Each user gets its
// OnStart call, then runs weighted tasks with a random pause of
// MinWait..MaxWait between them until the run ends, then gets OnStop.
//
//	config := loadtest.DefaultConfig("site")
//	config.Users = 20
//	config.Observers = []loadtest.Observer{loadtest.NewEventMarker(logger)}
//
//	framework := loadtest.New(config, func(env loadtest.UserEnv) (loadtest.User, error) {
//	    return newShopper(env), nil
//	})
//	summary, err := framework.Run(ctx)
//
// Users report every request through UserEnv.Recorder. Samples are
// aggregated per (type, name) by Stats and may be fanned out to further
// recorders such as PromRecorder. A Summary can be checked against an SLA
// with SLAValidator.
//
// # Events
//
// Observers receive start_hatching before the first user starts,
// hatch_complete once every user is started and quitting after the last
// user has stopped.
package loadtest
