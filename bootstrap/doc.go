// Package bootstrap builds the tftpwatch components from configuration and
// runs them as one supervised group.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx, cfg, bootstrap.AllComponents(), sugar)
//	if err != nil {
//	    return err
//	}
//	defer app.Shutdown()
//
//	// Blocks until ctx is cancelled or a component fails
//	if err := app.Run(ctx); err != nil {
//	    return err
//	}
package bootstrap
