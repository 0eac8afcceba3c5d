// Package bootstrap runs a discovery process: it starts the registered
// components in order, runs the lifecycle hooks, prints a startup summary
// and shuts everything down on SIGINT or SIGTERM.
//
//	app, err := bootstrap.NewApp(cfg)
//	app.RegisterComponent(res)
//	app.RegisterComponent(adminServer)
//	app.OnStop(func(ctx context.Context) error { return tp.Shutdown(ctx) })
//	err = app.Run(ctx)
//
// RunTask runs a finite task with the same lifecycle, for one-shot
// commands such as a single resolution.
package bootstrap
