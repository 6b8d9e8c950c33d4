package state

import (
	"fmt"
	"strings"
)

// EmailSettings is the content of email.json. The SMTP password is never
// stored here; it comes from the environment or the encrypted secrets file.
type EmailSettings struct {
	Server   string `json:"server"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	From     string `json:"from"`
	To       string `json:"to"`
	TLS      bool   `json:"tls"`
}

// DefaultEmailSettings carries transport defaults only; no account data.
func DefaultEmailSettings() EmailSettings {
	return EmailSettings{Port: 587, TLS: true}
}

// Validate reports missing fields required to send a message.
func (e EmailSettings) Validate() error {
	var missing []string
	if strings.TrimSpace(e.Server) == "" {
		missing = append(missing, "server")
	}
	if e.Port <= 0 || e.Port > 65535 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(e.From) == "" {
		missing = append(missing, "from")
	}
	if strings.TrimSpace(e.To) == "" {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return fmt.Errorf("email settings incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadEmail returns the stored email settings or the defaults.
func (s *Store) LoadEmail() EmailSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := DefaultEmailSettings()
	if _, err := s.readJSON(EmailFile, &settings); err != nil {
		s.logger.Warning("Cannot read email settings, using defaults: %v", err)
		return DefaultEmailSettings()
	}
	return settings
}

// SaveEmail persists settings.
func (s *Store) SaveEmail(settings EmailSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(EmailFile, settings)
}
