package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/tis24dev/drivesave/internal/types"
	"github.com/tis24dev/drivesave/pkg/utils"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "/etc/drivesave/drivesave.env"

// ScriptPlaceholder is replaced with the directive script path in VOLUME_COMMAND_ARGS.
const ScriptPlaceholder = "{script}"

// Config holds the whole runtime configuration.
type Config struct {
	ConfigPath string

	StateDir string `conf:"STATE_DIR,/var/lib/drivesave"`
	LogDir   string `conf:"LOG_DIR,/var/log/drivesave"`

	DebugLevel types.LogLevel `conf:"DEBUG_LEVEL,info"`
	UseColor   bool           `conf:"USE_COLOR,true"`

	Volume    VolumeConfig
	Scheduler SchedulerConfig
	Retention RetentionConfig

	MinFreeSpaceGB float64 `conf:"MIN_FREE_SPACE_GB,1"`

	Metrics MetricsConfig
	Email   EmailConfig

	HealthSocket string `conf:"HEALTH_SOCKET,/run/drivesave/drivesave.sock"`

	raw map[string]string
}

// VolumeConfig describes the removable destination volume and the command
// used to bring it online.
type VolumeConfig struct {
	MountPath   string        `conf:"VOLUME_MOUNT_PATH"`
	Command     string        `conf:"VOLUME_COMMAND,diskpart"`
	CommandArgs []string      `conf:"VOLUME_COMMAND_ARGS,/s {script}"`
	Disk        int           `conf:"VOLUME_DISK,1"`
	Partition   int           `conf:"VOLUME_PARTITION,1"`
	Letter      string        `conf:"VOLUME_LETTER,D"`
	SettleDelay time.Duration `conf:"VOLUME_SETTLE_DELAY,1s"`
	VerifyDelay time.Duration `conf:"VOLUME_VERIFY_DELAY,2s"`
	StatTimeout time.Duration `conf:"VOLUME_STAT_TIMEOUT,5s"`
}

// SchedulerConfig controls the scheduling loop and trusted time.
type SchedulerConfig struct {
	Interval   time.Duration `conf:"SCHEDULER_INTERVAL,30s"`
	NTPServers []string      `conf:"NTP_SERVERS,time.windows.com time.google.com pool.ntp.org"`
	NTPTimeout time.Duration `conf:"NTP_TIMEOUT,3s"`
}

// RetentionConfig limits how many backup folders stay on the volume.
type RetentionConfig struct {
	MaxBackupCount   int `conf:"MAX_BACKUP_COUNT,5"`
	MaxBackupAgeDays int `conf:"MAX_BACKUP_AGE_DAYS,30"`
}

// MetricsConfig enables the Prometheus textfile exporter.
type MetricsConfig struct {
	Enabled bool   `conf:"METRICS_ENABLED,false"`
	Path    string `conf:"METRICS_PATH,/var/lib/prometheus/node-exporter"`
}

// EmailConfig holds the delivery switches. Server settings live in
// email.json; the password never lives in either.
type EmailConfig struct {
	Enabled         bool   `conf:"EMAIL_ENABLED,false"`
	DeliveryMethod  string `conf:"EMAIL_DELIVERY_METHOD,smtp"`
	SMTPPassword    string `conf:"SMTP_PASSWORD"`
	SecretsFile     string `conf:"SECRETS_FILE"`
	AgeIdentityFile string `conf:"AGE_IDENTITY_FILE"`
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	logLevelType = reflect.TypeOf(types.LogLevel(0))
)

// LoadConfig reads the env-file at configPath, applies environment overrides
// and binds the result. An empty configPath uses environment and defaults only.
func LoadConfig(configPath string) (*Config, error) {
	rawValues := map[string]string{}
	if configPath != "" {
		if !utils.FileExists(configPath) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		parsed, err := parseEnvFile(configPath)
		if err != nil {
			return nil, err
		}
		rawValues = parsed
	}

	cfg := &Config{
		ConfigPath: configPath,
		raw:        rawValues,
	}

	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) parse() error {
	if err := c.loadStruct(reflect.ValueOf(c).Elem()); err != nil {
		return err
	}
	if c.Volume.MountPath == "" {
		c.Volume.MountPath = defaultMountPath(c.Volume.Letter)
	}
	c.Email.DeliveryMethod = strings.ToLower(strings.TrimSpace(c.Email.DeliveryMethod))
	return nil
}

func defaultMountPath(letter string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(letter) + `:\`
	}
	return "/mnt/drivesave"
}

// lookup returns the value for key, giving environment variables precedence
// over the file.
func (c *Config) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := c.raw[key]
	return v, ok
}

func (c *Config) loadStruct(st reflect.Value) error {
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		fieldType := st.Type().Field(i)

		if fieldType.Type.Kind() == reflect.Struct {
			if err := c.loadStruct(field); err != nil {
				return err
			}
			continue
		}

		tag, ok := fieldType.Tag.Lookup("conf")
		if !ok {
			continue
		}
		key, defaultValue, _ := strings.Cut(tag, ",")

		value, given := c.lookup(key)
		if !given {
			value = defaultValue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	value = strings.TrimSpace(value)

	switch field.Type() {
	case durationType:
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	case logLevelType:
		level, err := types.ParseLogLevel(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(level))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		if value == "" {
			field.SetInt(0)
			return nil
		}
		n, err := cast.ToInt64E(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		field.SetInt(n)
	case reflect.Bool:
		field.SetBool(utils.ParseBool(value))
	case reflect.Float64:
		if value == "" {
			field.SetFloat(0)
			return nil
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		field.Set(reflect.ValueOf(utils.SplitList(value)))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// parseDuration accepts Go duration strings ("1500ms", "2s") and bare
// integers, which are read as seconds.
func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	if n, err := cast.ToInt64E(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := cast.ToDurationE(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}

// Validate reports configuration values the program cannot work with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.StateDir) == "" {
		problems = append(problems, "STATE_DIR must not be empty")
	}
	if strings.TrimSpace(c.LogDir) == "" {
		problems = append(problems, "LOG_DIR must not be empty")
	}
	if strings.TrimSpace(c.Volume.MountPath) == "" {
		problems = append(problems, "VOLUME_MOUNT_PATH must not be empty")
	}
	if strings.TrimSpace(c.Volume.Command) == "" {
		problems = append(problems, "VOLUME_COMMAND must not be empty")
	}
	if !containsPlaceholder(c.Volume.CommandArgs) {
		problems = append(problems, fmt.Sprintf("VOLUME_COMMAND_ARGS must reference %s", ScriptPlaceholder))
	}
	if c.Volume.StatTimeout <= 0 {
		problems = append(problems, "VOLUME_STAT_TIMEOUT must be positive")
	}
	if c.Volume.SettleDelay < 0 || c.Volume.VerifyDelay < 0 {
		problems = append(problems, "volume delays must not be negative")
	}
	if c.Scheduler.Interval <= 0 {
		problems = append(problems, "SCHEDULER_INTERVAL must be positive")
	}
	if c.Retention.MaxBackupCount < 1 {
		problems = append(problems, "MAX_BACKUP_COUNT must be at least 1")
	}
	if c.Retention.MaxBackupAgeDays < 0 {
		problems = append(problems, "MAX_BACKUP_AGE_DAYS must not be negative")
	}
	if c.MinFreeSpaceGB < 0 {
		problems = append(problems, "MIN_FREE_SPACE_GB must not be negative")
	}
	switch c.Email.DeliveryMethod {
	case "smtp", "sendmail":
	default:
		problems = append(problems, fmt.Sprintf("EMAIL_DELIVERY_METHOD %q is not smtp or sendmail", c.Email.DeliveryMethod))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func containsPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, ScriptPlaceholder) {
			return true
		}
	}
	return false
}

// Get returns the raw file value for key.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.raw[key]
	return v, ok
}

// parseEnvFile reads KEY=VALUE lines. Later assignments win; comments and
// blank lines are skipped.
func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open config file: %w", err)
	}
	defer file.Close()

	raw := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || utils.IsComment(trimmed) {
			continue
		}

		key, value, ok := utils.SplitKeyValue(line)
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected KEY=VALUE", path, lineNo)
		}
		raw[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return raw, nil
}
