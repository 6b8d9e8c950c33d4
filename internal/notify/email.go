package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/tis24dev/drivesave/internal/logging"
	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/internal/state"
)

// EmailDeliveryMethod represents the email delivery method
type EmailDeliveryMethod string

const (
	EmailDeliverySMTP     EmailDeliveryMethod = "smtp"
	EmailDeliverySendmail EmailDeliveryMethod = "sendmail"
)

// EmailConfig holds email notification configuration
type EmailConfig struct {
	Enabled        bool
	DeliveryMethod EmailDeliveryMethod
	Settings       state.EmailSettings
	// Password is resolved from SMTP_PASSWORD or the secrets file; it is
	// never read from email.json.
	Password string
	Timeout  time.Duration
}

// EmailNotifier implements the Notifier interface for Email
type EmailNotifier struct {
	config  EmailConfig
	logger  *logging.Logger
	deliver func(ctx context.Context, msg *mail.Msg) error
}

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// sendmailBinaryPath is the binary invoked when EMAIL_DELIVERY_METHOD=sendmail.
	sendmailBinaryPath = "/usr/sbin/sendmail"
)

// NewEmailNotifier validates config and creates a notifier. A disabled
// config is accepted without validation.
func NewEmailNotifier(config EmailConfig, logger *logging.Logger) (*EmailNotifier, error) {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if config.DeliveryMethod == "" {
		config.DeliveryMethod = EmailDeliverySMTP
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	n := &EmailNotifier{config: config, logger: logger}
	n.deliver = n.send

	if !config.Enabled {
		return n, nil
	}

	if config.DeliveryMethod != EmailDeliverySMTP && config.DeliveryMethod != EmailDeliverySendmail {
		return nil, fmt.Errorf("invalid email delivery method: %s (must be 'smtp' or 'sendmail')", config.DeliveryMethod)
	}
	if err := config.Settings.Validate(); err != nil {
		return nil, err
	}
	if !emailRegex.MatchString(strings.TrimSpace(config.Settings.From)) {
		return nil, fmt.Errorf("invalid sender address %q", config.Settings.From)
	}
	for _, rcpt := range recipients(config.Settings.To) {
		if !emailRegex.MatchString(rcpt) {
			return nil, fmt.Errorf("invalid recipient address %q", rcpt)
		}
	}
	if config.DeliveryMethod == EmailDeliverySMTP && config.Settings.Username != "" && config.Password == "" {
		return nil, fmt.Errorf("SMTP password not configured: set SMTP_PASSWORD or SECRETS_FILE")
	}
	return n, nil
}

// Name returns the notifier name
func (e *EmailNotifier) Name() string {
	return "Email"
}

// IsEnabled returns whether email notifications are enabled
func (e *EmailNotifier) IsEnabled() bool {
	return e.config.Enabled
}

// Send renders summary and delivers it.
func (e *EmailNotifier) Send(ctx context.Context, summary report.Summary) (*NotificationResult, error) {
	startTime := time.Now()
	result := &NotificationResult{
		Method:   "email-" + string(e.config.DeliveryMethod),
		Metadata: make(map[string]interface{}),
	}

	if !e.config.Enabled {
		e.logger.Debug("Email notifications disabled")
		result.Duration = time.Since(startTime)
		return result, nil
	}

	msg, err := e.BuildMessage(summary)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(startTime)
		return result, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	if err := e.deliver(sendCtx, msg); err != nil {
		result.Error = fmt.Errorf("deliver via %s: %w", e.config.DeliveryMethod, err)
		result.Duration = time.Since(startTime)
		return result, result.Error
	}

	result.Success = true
	result.Duration = time.Since(startTime)
	result.Metadata["recipients"] = recipients(e.config.Settings.To)
	e.logger.Debug("Email delivered via %s in %s", e.config.DeliveryMethod, result.Duration)
	return result, nil
}

// BuildMessage creates the multipart message for summary.
func (e *EmailNotifier) BuildMessage(summary report.Summary) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(strings.TrimSpace(e.config.Settings.From)); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(recipients(e.config.Settings.To)...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(BuildEmailSubject(summary))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, BuildEmailPlainText(summary))
	msg.AddAlternativeString(mail.TypeTextHTML, BuildEmailHTML(summary))
	return msg, nil
}

func (e *EmailNotifier) send(ctx context.Context, msg *mail.Msg) error {
	if e.config.DeliveryMethod == EmailDeliverySendmail {
		return msg.WriteToSendmailWithContext(ctx, sendmailBinaryPath, "-t", "-oi")
	}

	client, err := mail.NewClient(e.config.Settings.Server, e.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (e *EmailNotifier) clientOptions() []mail.Option {
	s := e.config.Settings
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTimeout(e.config.Timeout),
	}
	switch {
	case s.TLS && s.Port == 465:
		opts = append(opts, mail.WithSSL())
	case s.TLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(e.config.Password),
		)
	}
	return opts
}

// recipients splits a comma or semicolon separated address list.
func recipients(to string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(to, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
