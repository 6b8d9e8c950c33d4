package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/google/uuid"

	"github.com/tis24dev/drivesave/internal/health"
	"github.com/tis24dev/drivesave/internal/orchestrator"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/secrets"
	"github.com/tis24dev/drivesave/internal/types"
)

// sampleSummary is the report sent by --test-email.
func sampleSummary(now time.Time) report.Summary {
	run := types.BackupRun{
		ID:                 uuid.NewString(),
		Kind:               types.BackupIncremental,
		StartTime:          now.Add(-90 * time.Second),
		EndTime:            now,
		Sources:            []string{"/home/user/Documents"},
		DestinationDir:     "Incr_Backup_" + now.Format("2006-01-02_15-04-05"),
		TotalFiles:         3,
		TotalBytes:         3 << 20,
		SucceededFiles:     2,
		FailedFiles:        1,
		ProcessedBytes:     2 << 20,
		PeakThroughputMBps: 42.5,
		Errors: []types.FileError{
			{FileName: "/home/user/Documents/locked.xlsx", Message: "sample error: file in use"},
		},
	}
	return report.Build(run)
}

func (a *application) testEmail(ctx context.Context) int {
	logger := a.consoleLogger()
	email, err := a.emailNotifier(logger, a.store(logger), true)
	if err != nil {
		logger.Error("Email configuration invalid: %v", err)
		return types.ExitConfigError.Int()
	}
	result, err := email.Send(ctx, sampleSummary(timeNow()))
	if err != nil {
		logger.Error("Test email failed: %v", err)
		return types.ExitNotificationError.Int()
	}
	logger.Info("Test email sent via %s in %s", result.Method, result.Duration.Round(time.Millisecond))
	return types.ExitSuccess.Int()
}

// testVolume mounts the volume, writes and removes a probe file and
// unmounts again.
func (a *application) testVolume(ctx context.Context) (code int) {
	logger := a.consoleLogger()
	vol := a.newVolume(logger)

	logger.Step("Mounting %s", vol.MountPath())
	if err := vol.Mount(ctx); err != nil {
		logger.Error("Mount failed: %v", err)
		return types.ExitMountError.Int()
	}
	defer func() {
		logger.Step("Unmounting %s", vol.MountPath())
		if err := vol.Unmount(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Unmount failed: %v", err)
			code = types.ExitMountError.Int()
		}
	}()

	probe := filepath.Join(vol.MountPath(), ".drivesave-probe-"+uuid.NewString()[:8])
	payload := []byte("drivesave volume probe " + timeNow().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(probe, payload, 0o600); err != nil {
		logger.Error("Cannot write probe file: %v", err)
		return types.ExitPermissionError.Int()
	}
	readBack, err := os.ReadFile(probe)
	removeErr := os.Remove(probe)
	if err != nil || !bytes.Equal(readBack, payload) {
		logger.Error("Probe file read back failed: %v", err)
		return types.ExitBackupError.Int()
	}
	if removeErr != nil {
		logger.Warning("Cannot remove probe file %s: %v", probe, removeErr)
	}
	logger.Info("Volume OK: write, read and delete succeeded on %s", vol.MountPath())
	if dir, m, err := orchestrator.LatestManifest(vol.MountPath()); err == nil {
		logger.Info("Latest backup: %s (%s, %d/%d files, finished %s)", filepath.Base(dir), m.Status,
			m.Files.Succeeded, m.Files.Total, m.EndTime.Format("2006-01-02 15:04"))
	} else {
		logger.Info("No backup found on the volume yet")
	}
	return types.ExitSuccess.Int()
}

// encryptSecret prompts for the SMTP password and stores it in SECRETS_FILE,
// encrypted to AGE_IDENTITY_FILE or to a passphrase.
func (a *application) encryptSecret() int {
	logger := a.consoleLogger()
	path := a.cfg.Email.SecretsFile
	if path == "" {
		logger.Error("SECRETS_FILE is not set")
		return types.ExitConfigError.Int()
	}
	if !stdinIsTerminal() {
		logger.Error("--encrypt-secret needs an interactive terminal")
		return types.ExitConfigError.Int()
	}

	var recipients []age.Recipient
	if a.cfg.Email.AgeIdentityFile != "" {
		rs, err := secrets.RecipientsFor(a.cfg.Email.AgeIdentityFile)
		if err != nil {
			logger.Error("%v", err)
			return types.ExitConfigError.Int()
		}
		recipients = rs
	} else {
		pass, err := promptTwice("Secrets passphrase")
		if err != nil {
			logger.Error("%v", err)
			return types.ExitConfigError.Int()
		}
		r, err := secrets.PassphraseRecipient(pass)
		if err != nil {
			logger.Error("%v", err)
			return types.ExitConfigError.Int()
		}
		recipients = []age.Recipient{r}
	}

	password, err := promptTwice("SMTP password")
	if err != nil {
		logger.Error("%v", err)
		return types.ExitConfigError.Int()
	}
	values := map[string]string{secrets.SMTPPasswordKey: password}
	if err := secrets.WriteFile(path, values, recipients...); err != nil {
		logger.Error("Cannot write %s: %v", path, err)
		return types.ExitStateError.Int()
	}
	logger.Info("SMTP password stored in %s", path)
	return types.ExitSuccess.Int()
}

func promptTwice(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	first, err := readPassword()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "Repeat %s: ", strings.ToLower(label))
	second, err := readPassword()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if len(first) == 0 {
		return "", errors.New(label + " must not be empty")
	}
	if !bytes.Equal(first, second) {
		return "", errors.New(label + " entries do not match")
	}
	return string(first), nil
}

func (a *application) runHealthcheck(ctx context.Context) int {
	resp, err := health.Healthcheck(ctx, a.cfg.HealthSocket)
	if err != nil {
		a.bootstrap.Error("UNHEALTHY: %v", err)
		return types.ExitGenericError.Int()
	}
	state := "idle"
	if resp.Daemon.Running {
		state = "backup running"
	}
	fmt.Printf("%s (%s), version %s\n", resp.Status, state, resp.Version)
	fmt.Printf("Schedule: %s\n", resp.Daemon.ScheduleSet)
	if !resp.Daemon.NextRun.IsZero() {
		fmt.Printf("Next run: %s\n", resp.Daemon.NextRun.Format("Monday 02.01.2006 15:04"))
	}
	if resp.Daemon.LastError != "" {
		fmt.Printf("Last error: %s\n", resp.Daemon.LastError)
	}
	return types.ExitSuccess.Int()
}

func (a *application) runTrigger(ctx context.Context, kindName string) int {
	kind, err := types.ParseBackupKind(kindName)
	if err != nil {
		a.bootstrap.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}
	if err := health.Trigger(ctx, a.cfg.HealthSocket, kind); err != nil {
		if errors.Is(err, health.ErrBusy) {
			a.bootstrap.Warning("Trigger refused: %v", err)
			return types.ExitLockError.Int()
		}
		a.bootstrap.Error("ERROR: %v", err)
		return types.ExitGenericError.Int()
	}
	a.bootstrap.Info("%s backup started by the daemon", kind)
	return types.ExitSuccess.Int()
}
