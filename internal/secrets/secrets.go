// Package secrets keeps credentials out of the plain state files. Secrets
// live in an age-encrypted env-style file decrypted at startup with an age
// or SSH identity, or with a passphrase.
package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/agessh"
	"filippo.io/age/armor"
	"golang.org/x/crypto/ssh"

	"github.com/tis24dev/drivesave/pkg/utils"
)

// SMTPPasswordKey is the entry holding the SMTP password.
const SMTPPasswordKey = "SMTP_PASSWORD"

// PassphraseFunc supplies a passphrase on demand (for scrypt-encrypted
// files or passphrase-protected SSH keys).
type PassphraseFunc func() ([]byte, error)

// scryptWorkFactor is lowered by tests.
var scryptWorkFactor = 18

// ErrNoIdentity is returned when neither an identity file nor a passphrase
// source is available.
var ErrNoIdentity = errors.New("no age identity or passphrase available")

// LoadIdentities reads identityFile. Native age identities and SSH private
// keys are both accepted; an encrypted SSH key asks passphrase lazily.
// Without an identity file, passphrase (if any) yields an scrypt identity.
func LoadIdentities(identityFile string, passphrase PassphraseFunc) ([]age.Identity, error) {
	if identityFile == "" {
		if passphrase == nil {
			return nil, ErrNoIdentity
		}
		pass, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		id, err := age.NewScryptIdentity(string(pass))
		if err != nil {
			return nil, err
		}
		return []age.Identity{id}, nil
	}

	data, err := os.ReadFile(identityFile)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	if bytes.Contains(data, []byte("PRIVATE KEY-----")) {
		id, err := parseSSHIdentity(data, passphrase)
		if err != nil {
			return nil, err
		}
		return []age.Identity{id}, nil
	}

	ids, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", identityFile, err)
	}
	return ids, nil
}

func parseSSHIdentity(pemBytes []byte, passphrase PassphraseFunc) (age.Identity, error) {
	id, err := agessh.ParseIdentity(pemBytes)
	if err == nil {
		return id, nil
	}
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("parse SSH identity: %w", err)
	}
	if missing.PublicKey == nil {
		return nil, fmt.Errorf("encrypted SSH key without embedded public key is not supported")
	}
	if passphrase == nil {
		return nil, fmt.Errorf("SSH identity is passphrase protected: %w", ErrNoIdentity)
	}
	return agessh.NewEncryptedSSHIdentity(missing.PublicKey, pemBytes, passphrase)
}

// RecipientsFor returns recipients matching identities loaded from an age
// identity file, so --encrypt-secret can reuse AGE_IDENTITY_FILE.
func RecipientsFor(identityFile string) ([]age.Recipient, error) {
	data, err := os.ReadFile(identityFile)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	if bytes.Contains(data, []byte("PRIVATE KEY-----")) {
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse SSH key: %w", err)
		}
		r, err := agessh.ParseRecipient(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))
		if err != nil {
			return nil, err
		}
		return []age.Recipient{r}, nil
	}

	ids, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out []age.Recipient
	for _, id := range ids {
		if x, ok := id.(*age.X25519Identity); ok {
			out = append(out, x.Recipient())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no X25519 identities in %s", identityFile)
	}
	return out, nil
}

// ParseRecipient accepts "age1..." and "ssh-..." recipient strings.
func ParseRecipient(value string) (age.Recipient, error) {
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, "age1"):
		return age.ParseX25519Recipient(value)
	case strings.HasPrefix(strings.ToLower(value), "ssh-"):
		return agessh.ParseRecipient(value)
	default:
		return nil, fmt.Errorf("unsupported age recipient format: %s", value)
	}
}

// PassphraseRecipient returns an scrypt recipient for pass.
func PassphraseRecipient(pass string) (age.Recipient, error) {
	r, err := age.NewScryptRecipient(pass)
	if err != nil {
		return nil, err
	}
	r.SetWorkFactor(scryptWorkFactor)
	return r, nil
}

// Encrypt writes values as an armored age file readable by recipients.
// Each value is stored verbatim on one line.
func Encrypt(w io.Writer, values map[string]string, recipients ...age.Recipient) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}
	aw := armor.NewWriter(w)
	enc, err := age.Encrypt(aw, recipients...)
	if err != nil {
		return fmt.Errorf("start encryption: %w", err)
	}
	for key, value := range values {
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("secret %s must be a single line", key)
		}
		if _, err := fmt.Fprintf(enc, "%s=%s\n", key, value); err != nil {
			return err
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish encryption: %w", err)
	}
	return aw.Close()
}

// WriteFile encrypts values into path with mode 0600.
func WriteFile(path string, values map[string]string, recipients ...age.Recipient) error {
	var buf bytes.Buffer
	if err := Encrypt(&buf, values, recipients...); err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, buf.Bytes(), 0o600)
}

// Decrypt reads an armored or binary age file and parses KEY=VALUE lines.
func Decrypt(r io.Reader, identities ...age.Identity) (map[string]string, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(len(armor.Header)); string(head) == armor.Header {
		src = armor.NewReader(br)
	}

	plain, err := age.Decrypt(src, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}

	// Values are taken verbatim after the first '=' so passwords may
	// contain quotes and '#'.
	values := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if utils.IsComment(line) {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok && strings.TrimSpace(key) != "" {
			values[strings.TrimSpace(key)] = value
		}
	}
	return values, nil
}

// ReadFile decrypts path.
func ReadFile(path string, identities ...age.Identity) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open secrets file: %w", err)
	}
	defer f.Close()
	return Decrypt(f, identities...)
}

// Source describes where the SMTP password can come from.
type Source struct {
	// Password is SMTP_PASSWORD from the environment or config; it wins.
	Password     string
	SecretsFile  string
	IdentityFile string
	Passphrase   PassphraseFunc
}

// ResolveSMTPPassword returns the SMTP password, or "" when none is configured.
func ResolveSMTPPassword(src Source) (string, error) {
	if src.Password != "" {
		return src.Password, nil
	}
	if src.SecretsFile == "" {
		return "", nil
	}
	ids, err := LoadIdentities(src.IdentityFile, src.Passphrase)
	if err != nil {
		return "", err
	}
	values, err := ReadFile(src.SecretsFile, ids...)
	if err != nil {
		return "", err
	}
	pw, ok := values[SMTPPasswordKey]
	if !ok {
		return "", fmt.Errorf("%s not found in %s", SMTPPasswordKey, src.SecretsFile)
	}
	return pw, nil
}
