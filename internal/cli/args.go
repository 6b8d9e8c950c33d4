package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tis24dev/drivesave/internal/config"
	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/internal/version"
)

const (
	configSourceDefault = "default path"
	configSourceFlag    = "specified via --config/-c flag"
)

var osExit = os.Exit

// Mode is the single action a process invocation performs.
type Mode string

const (
	ModeNone            Mode = ""
	ModeRunUnattended   Mode = "run-unattended"
	ModeBackupNow       Mode = "backup-now"
	ModeDaemon          Mode = "daemon"
	ModeHealthcheck     Mode = "healthcheck"
	ModeTrigger         Mode = "trigger"
	ModeAddPath         Mode = "add-path"
	ModeRemovePath      Mode = "remove-path"
	ModeListPaths       Mode = "list-paths"
	ModeSetSchedule     Mode = "set-schedule"
	ModeDisableSchedule Mode = "disable-schedule"
	ModeShowSchedule    Mode = "show-schedule"
	ModeCronLine        Mode = "cron-line"
	ModeSetEmail        Mode = "set-email"
	ModeTestEmail       Mode = "test-email"
	ModeTestVolume      Mode = "test-volume"
	ModeEncryptSecret   Mode = "encrypt-secret"
)

// Args holds the parsed command-line arguments
type Args struct {
	ConfigPath       string
	ConfigPathSource string
	LogLevel         types.LogLevel
	ShowVersion      bool
	ShowHelp         bool

	RunUnattended bool
	BackupNow     string
	Daemon        bool
	Healthcheck   bool
	Trigger       bool
	Kind          string

	AddPath    string
	RemovePath string
	ListPaths  bool

	SetSchedule     string
	DisableSchedule bool
	ShowSchedule    bool
	CronLine        bool

	SetEmail string

	TestEmail     bool
	TestVolume    bool
	EncryptSecret bool
}

// Parse parses command-line arguments and returns Args struct
func Parse() *Args {
	args := &Args{}

	configFlag := newStringFlag(config.DefaultConfigPath)

	flag.Var(configFlag, "config", "Path to configuration file")
	flag.Var(configFlag, "c", "Path to configuration file (shorthand)")

	var logLevelStr string
	flag.StringVar(&logLevelStr, "log-level", "",
		"Log level (debug|info|warning|error|critical)")
	flag.StringVar(&logLevelStr, "l", "",
		"Log level (shorthand)")

	flag.BoolVar(&args.ShowVersion, "version", false,
		"Show version information")
	flag.BoolVar(&args.ShowVersion, "v", false,
		"Show version information (shorthand)")

	flag.BoolVar(&args.ShowHelp, "help", false,
		"Show help message")
	flag.BoolVar(&args.ShowHelp, "h", false,
		"Show help message (shorthand)")

	flag.BoolVar(&args.RunUnattended, "run-unattended", false,
		"Mount, back up (kind from the stored schedule), unmount and exit")
	flag.StringVar(&args.BackupNow, "backup-now", "",
		"Run one backup of the given kind (Full|Incremental) with a progress display")
	flag.BoolVar(&args.Daemon, "daemon", false,
		"Run the scheduler loop and the health socket until interrupted")
	flag.BoolVar(&args.Healthcheck, "healthcheck", false,
		"Probe a running daemon through its health socket")
	flag.BoolVar(&args.Trigger, "trigger", false,
		"Ask a running daemon to start a manual backup (see --kind)")
	flag.StringVar(&args.Kind, "kind", "Incremental",
		"Backup kind used by --trigger")

	flag.StringVar(&args.AddPath, "add-path", "",
		"Add a source directory")
	flag.StringVar(&args.RemovePath, "remove-path", "",
		"Remove a source directory")
	flag.BoolVar(&args.ListPaths, "list-paths", false,
		"List the source directories")

	flag.StringVar(&args.SetSchedule, "set-schedule", "",
		"Store the schedule, e.g. \"Monday 22:00 Full\" or \"daily 03:30 Incremental\"")
	flag.BoolVar(&args.DisableSchedule, "disable-schedule", false,
		"Disable the stored schedule")
	flag.BoolVar(&args.ShowSchedule, "show-schedule", false,
		"Show the stored schedule and the next run")
	flag.BoolVar(&args.CronLine, "cron-line", false,
		"Print a crontab entry that runs --run-unattended at the scheduled time")

	flag.StringVar(&args.SetEmail, "set-email", "",
		"Update email.json, e.g. \"server=smtp.example.com port=587 from=a@example.com to=b@example.com\"")
	flag.BoolVar(&args.TestEmail, "test-email", false,
		"Send a sample backup report email")
	flag.BoolVar(&args.TestVolume, "test-volume", false,
		"Mount the volume, write and remove a probe file, then unmount")
	flag.BoolVar(&args.EncryptSecret, "encrypt-secret", false,
		"Prompt for the SMTP password and store it in the age-encrypted SECRETS_FILE")

	flag.Usage = func() {
		printHelp(os.Stderr, os.Args[0])
	}

	flag.Parse()

	args.ConfigPath = configFlag.value
	if configFlag.set {
		args.ConfigPathSource = configSourceFlag
	} else {
		args.ConfigPathSource = configSourceDefault
	}

	if logLevelStr != "" {
		args.LogLevel = parseLogLevel(logLevelStr)
	} else {
		args.LogLevel = types.LogLevelNone // Will be overridden by config
	}

	return args
}

// Modes returns every action requested on the command line.
func (a *Args) Modes() []Mode {
	var modes []Mode
	add := func(set bool, m Mode) {
		if set {
			modes = append(modes, m)
		}
	}
	add(a.RunUnattended, ModeRunUnattended)
	add(a.BackupNow != "", ModeBackupNow)
	add(a.Daemon, ModeDaemon)
	add(a.Healthcheck, ModeHealthcheck)
	add(a.Trigger, ModeTrigger)
	add(a.AddPath != "", ModeAddPath)
	add(a.RemovePath != "", ModeRemovePath)
	add(a.ListPaths, ModeListPaths)
	add(a.SetSchedule != "", ModeSetSchedule)
	add(a.DisableSchedule, ModeDisableSchedule)
	add(a.ShowSchedule, ModeShowSchedule)
	add(a.CronLine, ModeCronLine)
	add(a.SetEmail != "", ModeSetEmail)
	add(a.TestEmail, ModeTestEmail)
	add(a.TestVolume, ModeTestVolume)
	add(a.EncryptSecret, ModeEncryptSecret)
	return modes
}

// Mode returns the single requested action. More than one action is an
// error; none yields ModeNone.
func (a *Args) Mode() (Mode, error) {
	modes := a.Modes()
	switch len(modes) {
	case 0:
		return ModeNone, nil
	case 1:
		return modes[0], nil
	default:
		names := make([]string, len(modes))
		for i, m := range modes {
			names[i] = "--" + string(m)
		}
		return ModeNone, fmt.Errorf("options %s cannot be combined", strings.Join(names, ", "))
	}
}

// parseLogLevel converts string to LogLevel
func parseLogLevel(s string) types.LogLevel {
	level, err := types.ParseLogLevel(s)
	if err != nil {
		return types.LogLevelInfo
	}
	return level
}

// ShowHelp displays help message and exits
func ShowHelp() {
	printHelp(os.Stderr, os.Args[0])
	osExit(0)
}

// ShowVersion displays version information and exits
func ShowVersion() {
	printVersion(os.Stdout)
	osExit(0)
}

func printHelp(w io.Writer, argv0 string) {
	fmt.Fprintf(w, "Usage: %s [options]\n\n", argv0)
	fmt.Fprintln(w, "drivesave - scheduled file backup to a removable volume")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s --add-path /srv/data\n", argv0)
	fmt.Fprintf(w, "  %s --set-schedule \"Monday 22:00 Full\"\n", argv0)
	fmt.Fprintf(w, "  %s -c /etc/drivesave/drivesave.env --daemon\n", argv0)
	fmt.Fprintf(w, "  %s --backup-now Incremental --log-level debug\n", argv0)
	fmt.Fprintf(w, "  %s --set-email \"server=smtp.example.com port=587 username=backup\"\n", argv0)
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, "drivesave")
	fmt.Fprintf(w, "Version: %s\n", version.Full())
	fmt.Fprintln(w, "Author: tis24dev")
}

type stringFlag struct {
	value string
	set   bool
}

func newStringFlag(defaultValue string) *stringFlag {
	return &stringFlag{value: defaultValue}
}

func (s *stringFlag) String() string {
	if s == nil {
		return ""
	}
	return s.value
}

func (s *stringFlag) Set(val string) error {
	s.value = val
	s.set = true
	return nil
}
