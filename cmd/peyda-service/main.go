// Package main is the entry point of the flight aggregation service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cinascorp/Peyda/cmd/peyda-service/daemon"
)

func main() {
	a, err := daemon.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create the service: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(a))
}

type app interface {
	Run() error
	UsageError() bool
	Hup() bool
	Quit()
}

func run(a app) int {
	defer installSignalHandler(a)()

	if err := a.Run(); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}

func installSignalHandler(a app) func() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			v, ok := <-c
			if !ok {
				slog.Debug("Signal channel closed")
				return
			}

			switch v {
			case syscall.SIGINT, syscall.SIGTERM:
				slog.Info("Stopping on signal", "signal", v)
				a.Quit()
				return
			case syscall.SIGHUP:
				if a.Hup() {
					a.Quit()
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(c)
		close(c)
		wg.Wait()
	}
}
