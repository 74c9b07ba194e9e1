// Package process supervises a single media-relay child process.
//
// A Supervisor holds at most one child. Start, Stop and Restart run under
// one lock and return a plain success flag, so callers on HTTP handlers,
// the config watcher and the signal path can all drive it safely.
//
// Stopping sends SIGTERM to the child's process group, polls liveness, and
// sends SIGKILL once if the child is still there after the graceful timeout.
// Child stdout and stderr share one pipe and are forwarded line by line to
// a LineSink, classified as error or info.
//
// Example usage:
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:       "mediamtx",
//	    Binary:     "./mediamtx",
//	    ConfigPath: "./mediamtx.yml",
//	    Output:     sink,
//	    OnEvent:    dispatcher.Handle,
//	})
//	sup.SetLogger(logger)
//
//	if !sup.Start() {
//	    logger.Error("relay failed to start")
//	}
//	defer sup.Shutdown(2 * time.Second)
package process
