package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/tis24dev/drivesave/internal/checks"
	"github.com/tis24dev/drivesave/internal/cli"
	"github.com/tis24dev/drivesave/internal/config"
	"github.com/tis24dev/drivesave/internal/events"
	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/metrics"
	"github.com/tis24dev/drivesave/internal/notify"
	"github.com/tis24dev/drivesave/internal/orchestrator"
	"github.com/tis24dev/drivesave/internal/secrets"
	"github.com/tis24dev/drivesave/internal/state"
	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/internal/volume"
)

// passphraseEnv unlocks a passphrase-encrypted secrets file without a TTY.
const passphraseEnv = "DRIVESAVE_SECRETS_PASSPHRASE"

var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// application carries what every mode needs after the configuration is loaded.
type application struct {
	args      *cli.Args
	cfg       *config.Config
	level     types.LogLevel
	bootstrap *logging.BootstrapLogger
	version   string
}

// consoleLogger is used by the short management modes: no log file.
func (a *application) consoleLogger() *logging.Logger {
	logger := logging.New(a.level, a.cfg.UseColor && logging.IsTerminal(os.Stdout))
	logging.SetDefaultLogger(logger)
	a.bootstrap.Flush(logger)
	return logger
}

// runLogger mirrors the console to backup_log.txt. When the log directory
// cannot be opened the run continues on the console only.
func (a *application) runLogger() (*logging.Logger, func()) {
	useColor := a.cfg.UseColor && logging.IsTerminal(os.Stdout)
	logger, cleanup, err := logging.StartRunLogger(a.cfg.LogDir, a.level, useColor)
	if err != nil {
		logger = logging.New(a.level, useColor)
		logger.Warning("Run log unavailable, logging to console only: %v", err)
		cleanup = func() {}
	}
	logging.SetDefaultLogger(logger)
	a.bootstrap.Flush(logger)
	return logger, cleanup
}

func (a *application) store(logger *logging.Logger) *state.Store {
	return state.NewStore(a.cfg.StateDir, logger)
}

func (a *application) newVolume(logger *logging.Logger) *volume.Controller {
	return volume.New(volume.OptionsFromConfig(a.cfg.Volume), nil, logger)
}

func (a *application) checker(logger *logging.Logger) *checks.Checker {
	cc := checks.GetDefaultCheckerConfig(a.cfg.Volume.MountPath, a.cfg.StateDir, a.cfg.LogDir)
	cc.MinFreeSpaceGB = a.cfg.MinFreeSpaceGB
	return checks.NewChecker(logger, cc)
}

// passphrase returns the secrets passphrase from the environment, or
// prompts for it when attached to a terminal.
func passphrase() ([]byte, error) {
	if v, ok := os.LookupEnv(passphraseEnv); ok && v != "" {
		return []byte(v), nil
	}
	if !stdinIsTerminal() {
		return nil, fmt.Errorf("no terminal to prompt for the secrets passphrase; set %s", passphraseEnv)
	}
	fmt.Fprint(os.Stderr, "Secrets passphrase: ")
	pass, err := readPassword()
	fmt.Fprintln(os.Stderr)
	return pass, err
}

func (a *application) secretsSource() secrets.Source {
	return secrets.Source{
		Password:     a.cfg.Email.SMTPPassword,
		SecretsFile:  a.cfg.Email.SecretsFile,
		IdentityFile: a.cfg.Email.AgeIdentityFile,
		Passphrase:   passphrase,
	}
}

// emailNotifier builds the email notifier from config plus email.json.
// force enables it regardless of EMAIL_ENABLED.
func (a *application) emailNotifier(logger *logging.Logger, store *state.Store, force bool) (*notify.EmailNotifier, error) {
	enabled := a.cfg.Email.Enabled || force
	ec := notify.EmailConfig{
		Enabled:        enabled,
		DeliveryMethod: notify.EmailDeliveryMethod(a.cfg.Email.DeliveryMethod),
		Settings:       store.LoadEmail(),
		Timeout:        30 * time.Second,
	}
	if enabled {
		pw, err := secrets.ResolveSMTPPassword(a.secretsSource())
		if err != nil {
			return nil, fmt.Errorf("resolve SMTP password: %w", err)
		}
		ec.Password = pw
	}
	return notify.NewEmailNotifier(ec, logger)
}

// newOrchestrator wires every run dependency. A broken email configuration
// disables notifications instead of blocking backups.
func (a *application) newOrchestrator(logger *logging.Logger, store *state.Store, checker *checks.Checker, progress *events.Bus[types.ProgressEvent]) *orchestrator.Orchestrator {
	var notifiers []notify.Notifier
	if a.cfg.Email.Enabled {
		email, err := a.emailNotifier(logger, store, false)
		if err != nil {
			logger.Warning("Email notifications disabled: %v", err)
		} else {
			notifiers = append(notifiers, email)
		}
	}

	deps := orchestrator.Deps{
		Logger:   logger,
		Version:  a.version,
		Volume:   a.newVolume(logger),
		Notifier: notify.NewManager(logger, notifiers...),
		Markers:  store,
		Space:    checker,
		Progress: progress,
		Retention: orchestrator.RetentionPolicy{
			MaxCount: a.cfg.Retention.MaxBackupCount,
			MaxAge:   time.Duration(a.cfg.Retention.MaxBackupAgeDays) * 24 * time.Hour,
		},
	}
	if a.cfg.Metrics.Enabled {
		deps.Metrics = metrics.NewPrometheusExporter(a.cfg.Metrics.Path, logger)
	}
	return orchestrator.NewWithDeps(deps)
}

var errNoPaths = errors.New("no source paths configured")

// exitCodeFor maps the outcome of a run to the process exit code.
func exitCodeFor(run types.BackupRun, err error) types.ExitCode {
	if err != nil {
		var be *orchestrator.BackupError
		switch {
		case errors.As(err, &be):
			return be.Code
		case errors.Is(err, checks.ErrLocked):
			return types.ExitLockError
		case errors.Is(err, errNoPaths):
			return types.ExitConfigError
		default:
			return types.ExitBackupError
		}
	}
	if run.Partial() {
		return types.ExitPartialBackup
	}
	return types.ExitSuccess
}
