// Command armos boots the kernel core against a registered simulated
// user program, standing in for qemu-system-aarch64 loading a real
// disk image.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/armos-project/armos/internal/kernel"
	"github.com/armos-project/armos/pkg/bootconfig"
)

var log = logrus.WithField("cmd", "armos")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var program string
	var feed string
	var dumpTasks bool
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "armos",
		Short: "Boot the armos kernel core against a simulated user program.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := bootconfig.Default()
			if configPath != "" {
				loaded, err := bootconfig.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if program != "" {
				cfg.Init.Program = program
				cfg.Init.Argv = args
			}
			if feed != "" {
				cfg.Console.Feed = feed
			}
			return run(cfg, dumpTasks, timeout)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a TOML boot configuration file")
	flags.StringVar(&program, "program", "", "registered program to boot as init (overrides the config file; trailing args become its argv)")
	flags.StringVar(&feed, "feed", "", "bytes to queue at the fake console before boot, as if typed")
	flags.BoolVar(&dumpTasks, "dump-tasks", false, "print a task/process snapshot after the run")
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "give up waiting for the init process to exit after this long")

	return root
}

func run(cfg bootconfig.Config, dumpTasks bool, timeout time.Duration) error {
	registerDemoPrograms()

	k := kernel.NewKernel(time.Now())

	// RunTicks is the only background goroutine this process runs
	// besides the task goroutines the kernel itself owns; errgroup
	// gives us a single place to wait for its shutdown (it always
	// returns nil) instead of a bare "go" statement.
	var g errgroup.Group
	g.Go(func() error {
		k.RunTicks()
		return nil
	})
	defer func() {
		k.StopTicks()
		_ = g.Wait()
	}()

	if cfg.Console.Feed != "" {
		k.FeedConsole([]byte(cfg.Console.Feed))
	}

	proc, ok := k.Boot(cfg.Init.Program, cfg.Init.Argv)
	if !ok {
		return fmt.Errorf("armos: %q is not a registered program", cfg.Init.Program)
	}

	deadline := time.After(timeout)
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for proc.State() != kernel.ProcZombie {
		select {
		case <-tick.C:
		case <-deadline:
			log.Warn("init process did not exit before the timeout")
			goto done
		}
	}
done:
	fmt.Print(string(k.ConsoleOutput()))
	log.WithField("exit_code", proc.ExitCode()).Info("init process exited")

	if dumpTasks {
		fmt.Print(k.DumpTasks())
	}
	return nil
}
