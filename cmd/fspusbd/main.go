// Command fspusbd wires together the mass-storage bridge: it opens a
// [transport.Transport], drives a [manager.Manager] reconciler loop over
// it in the background, and exposes the result through an [fsservice.FsService]
// for some RPC framework to sit in front of. It takes no CLI flags, env
// vars, or config file — every bound is a compiled-in default, matching
// spec.md's Non-goals around external configuration surfaces.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ardnew/usbfs/pkg/prof"

	"github.com/ardnew/usbfs/fatfs"
	"github.com/ardnew/usbfs/fsservice"
	"github.com/ardnew/usbfs/manager"
	"github.com/ardnew/usbfs/msc"
	"github.com/ardnew/usbfs/pkg"
	"github.com/ardnew/usbfs/transport"
)

const componentDaemon pkg.Component = "fspusbd"

// Config collects every compiled-in bound the daemon runs with. There is
// deliberately no flag/env/file loader for it (spec.md's Non-goals);
// operators who need different bounds rebuild with a different Config.
type Config struct {
	MaxDrives     int
	MaxSessions   int64
	MaxSubObjects int
	// PointerBufferSize sizes the RPC dispatch framework's own
	// pointer-passing buffer; this package never allocates it directly
	// since that framework is external to fsservice, but the constant
	// is carried here so the daemon's compiled-in bounds stay in one
	// place.
	PointerBufferSize int
	ProfileHTTPAddr   string // empty disables this daemon's own pprof listener; pkg/prof's init still serves localhost:6060 under the profile tag
}

var defaultConfig = Config{
	MaxDrives:         fatfs.MaxDrives,
	MaxSessions:       fsservice.DefaultMaxSessions,
	MaxSubObjects:     fsservice.DefaultMaxSubObjects,
	PointerBufferSize: 2048,
	ProfileHTTPAddr:   "",
}

func main() {
	pkg.LogInfo(componentDaemon, "starting",
		"max_drives", defaultConfig.MaxDrives,
		"max_sessions", defaultConfig.MaxSessions,
		"max_sub_objects", defaultConfig.MaxSubObjects)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if defaultConfig.ProfileHTTPAddr != "" {
		go func() {
			pkg.LogInfo(componentDaemon, "profiling endpoint listening", "addr", defaultConfig.ProfileHTTPAddr)
			if err := http.ListenAndServe(defaultConfig.ProfileHTTPAddr, nil); err != nil {
				pkg.LogWarn(componentDaemon, "profiling endpoint stopped", "error", err)
			}
		}()
	}

	t := transport.Open(ctx)
	defer t.Close()

	x := msc.NewTransactor(t)
	m := manager.New(t, x)
	svc := fsservice.New(m, defaultConfig.MaxSessions, defaultConfig.MaxSubObjects)
	_ = svc // bound to the (externally supplied) RPC dispatch framework

	go m.Run(ctx)

	if err := m.Poll(ctx); err != nil {
		pkg.LogWarn(componentDaemon, "initial reconciliation failed", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	pkg.LogInfo(componentDaemon, "shutting down")
	m.Stop()
	cancel()
}
