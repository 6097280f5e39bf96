// Package supervisor restarts a broker connection after it is lost.
//
// The transports report connection loss instead of retrying on their own.
// The supervisor applies a fixed restart delay and an attempt budget, and
// turns an exhausted budget into a fatal error for the process.
//
// Example usage:
//
//	sup := supervisor.New(supervisor.Config{
//	    Name:               "mqtt",
//	    Restart:            client.Reconnect,
//	    RestartDelay:       5 * time.Second,
//	    MaxRestartAttempts: 10,
//	    HealthCheckFunc:    client.HealthCheck,
//	})
//	client.SetOnDisconnect(sup.Report)
//
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package supervisor
