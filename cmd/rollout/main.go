// cmd/rollout/main.go - CLI wrapper around the transactional install engine.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/rollout/pkg/action"
	"github.com/windowsadmins/rollout/pkg/bindings"
	"github.com/windowsadmins/rollout/pkg/config"
	"github.com/windowsadmins/rollout/pkg/engine"
	"github.com/windowsadmins/rollout/pkg/logging"
	"github.com/windowsadmins/rollout/pkg/preflight"
	"github.com/windowsadmins/rollout/pkg/retry"
	"github.com/windowsadmins/rollout/pkg/txnlog"
	"github.com/windowsadmins/rollout/pkg/version"
)

// Exit codes. Preflight kinds get distinct codes so callers can tell an
// arch mismatch from a privilege problem without parsing output.
const (
	exitOK                 = 0
	exitError              = 1
	exitUsage              = 2
	exitArchMismatch       = 10
	exitNoPrivilege        = 11
	exitProductRunning     = 12
	exitNoSpace            = 13
	exitNotWritable        = 14
	exitInstallFailed      = 20
	exitRollbackIncomplete = 21
	exitDowngrade          = 22
	exitUninstallPartial   = 30
	exitLocked             = 40
)

func main() {
	manifestPath := pflag.String("manifest", "", "Path to the install manifest YAML.")
	target := pflag.String("target", "", "Install root directory.")
	recordPath := pflag.String("record", "", "Path to a sealed install record (uninstall).")
	force := pflag.Bool("force", false, "Allow installing over a newer recorded version.")
	yes := pflag.Bool("yes", false, "Answer yes to all prompts (unattended mode).")
	checkOnly := pflag.Bool("checkonly", false, "Run preflight checks only; mutate nothing.")
	retries := pflag.Int("retries", -1, "Re-run a failed install up to N extra times (after clean rollback).")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")

	var verbosity int
	pflag.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv)")
	pflag.Parse()

	if *versionFlag {
		version.Print()
		os.Exit(exitOK)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(exitError)
	}

	level := logging.ParseLevel(cfg.LogLevel)
	switch {
	case verbosity == 1:
		level = logging.LevelInfo
	case verbosity >= 2:
		level = logging.LevelDebug
	}
	if err := logging.Init(level, cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(exitError)
	}
	if *retries < 0 {
		*retries = cfg.RetryAttempts
	}

	sys := bindings.Default()
	if *yes {
		sys.UI = bindings.AutoConfirm{}
	}

	var code int
	switch pflag.Arg(0) {
	case "install":
		code = runInstall(sys, cfg, *manifestPath, *target, *force, *checkOnly, *retries)
	case "uninstall":
		code = runUninstall(sys, cfg, *recordPath)
	default:
		fmt.Fprintln(os.Stderr, "Usage: rollout install --manifest <path> --target <dir> | rollout uninstall --record <path>")
		pflag.Usage()
		code = exitUsage
	}
	logging.Close()
	os.Exit(code)
}

func runInstall(sys *bindings.System, cfg *config.Configuration, manifestPath, target string, force, checkOnly bool, retries int) int {
	if manifestPath == "" {
		fmt.Fprintln(os.Stderr, "install requires --manifest")
		return exitUsage
	}
	m, err := action.Load(manifestPath)
	if err != nil {
		logging.Error("Manifest rejected", "path", manifestPath, "error", err)
		return exitUsage
	}
	if target == "" {
		target = cfg.DefaultInstallRoot
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "install requires --target (no DefaultInstallRoot configured)")
		return exitUsage
	}

	env := preflight.EnvironmentFor(m, target, cfg.SpaceSlackBytes)
	if err := preflight.Check(sys, env); err != nil {
		var pfErr *preflight.Error
		if errors.As(err, &pfErr) {
			for _, f := range pfErr.Failures {
				logging.Error("Preflight check failed", "kind", string(f.Kind), "detail", f.Detail)
			}
			return preflightExitCode(pfErr)
		}
		logging.Error("Preflight error", "error", err)
		return exitError
	}
	logging.Info("Preflight checks passed", "product", m.Product)

	if checkOnly {
		logging.Info("CheckOnly mode: no action performed", "product", m.Product, "actions", len(m.Actions))
		return exitOK
	}

	// Ctrl-C cancels between actions; the engine turns that into a normal
	// rollback.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng := engine.New(sys, engine.Options{
		Force:    force,
		LockWait: time.Duration(cfg.LockWaitSeconds) * time.Second,
	})

	var rec *txnlog.InstallRecord
	err = retry.Retry(retry.Config{
		MaxAttempts:     retries + 1,
		InitialInterval: 2 * time.Second,
	}, func() error {
		var ierr error
		rec, ierr = eng.Install(ctx, m, target)
		return ierr
	})
	if err != nil {
		return installExitCode(err)
	}

	logging.Info("Sealed install record", "path", txnlog.RecordPath(rec.InstallRoot), "run_id", rec.RunID)
	return exitOK
}

func runUninstall(sys *bindings.System, cfg *config.Configuration, recordPath string) int {
	if recordPath == "" {
		fmt.Fprintln(os.Stderr, "uninstall requires --record")
		return exitUsage
	}
	rec, err := txnlog.LoadRecord(recordPath)
	if err != nil {
		logging.Error("Install record rejected", "path", recordPath, "error", err)
		return exitUsage
	}

	eng := engine.New(sys, engine.Options{
		LockWait: time.Duration(cfg.LockWaitSeconds) * time.Second,
	})

	summary, err := eng.Uninstall(rec)
	if err != nil {
		var lockErr *engine.LockError
		if errors.As(err, &lockErr) {
			logging.Error("Another run holds the install root", "error", err)
			return exitLocked
		}
		var uErr *engine.UninstallError
		if errors.As(err, &uErr) {
			fmt.Fprintln(os.Stderr, "The following artifacts could not be removed:")
			for _, t := range uErr.Targets() {
				fmt.Fprintf(os.Stderr, "  %s\n", t)
			}
			return exitUninstallPartial
		}
		logging.Error("Uninstall error", "error", err)
		return exitError
	}

	logging.Info("Uninstall finished", "reversed", summary.Reversed, "already_absent", len(summary.AlreadyAbsent))
	return exitOK
}

func preflightExitCode(err *preflight.Error) int {
	switch {
	case err.Has(preflight.ArchMismatch):
		return exitArchMismatch
	case err.Has(preflight.InsufficientPrivilege):
		return exitNoPrivilege
	case err.Has(preflight.ProductRunning):
		return exitProductRunning
	case err.Has(preflight.InsufficientSpace):
		return exitNoSpace
	case err.Has(preflight.PathNotWritable):
		return exitNotWritable
	default:
		return exitError
	}
}

func installExitCode(err error) int {
	var lockErr *engine.LockError
	if errors.As(err, &lockErr) {
		return exitLocked
	}
	var dgErr *engine.DowngradeError
	if errors.As(err, &dgErr) {
		logging.Error("Downgrade refused", "error", err)
		return exitDowngrade
	}
	var iErr *engine.InstallError
	if errors.As(err, &iErr) {
		if iErr.RollbackErr != nil {
			fmt.Fprintln(os.Stderr, "Rollback incomplete; remove manually:")
			for _, t := range iErr.RollbackErr.Targets() {
				fmt.Fprintf(os.Stderr, "  %s\n", t)
			}
			return exitRollbackIncomplete
		}
		return exitInstallFailed
	}
	logging.Error("Install error", "error", err)
	return exitError
}
