package wallets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/layer-3/stindem/core"
	"golang.org/x/term"
)

// PromptFunc asks the user for the passphrase of account
type PromptFunc func(account string) (string, error)

// Passphrase resolves a keystore passphrase from an environment variable or by prompting.
// Only a passphrase that unlocked the account is cached.
type Passphrase struct {
	envVar string
	prompt PromptFunc

	mu     sync.Mutex
	cached string
}

// NewPassphrase checks envVar before falling back to prompt. A nil prompt uses the terminal.
func NewPassphrase(envVar string, prompt PromptFunc) *Passphrase {
	if prompt == nil {
		prompt = TerminalPrompt(os.Stdin, os.Stderr)
	}
	return &Passphrase{envVar: strings.TrimSpace(envVar), prompt: prompt}
}

// Lookup returns the passphrase if it is known without asking the user
func (p *Passphrase) Lookup() (string, bool) {
	p.mu.Lock()
	cached := p.cached
	p.mu.Unlock()
	if cached != "" {
		return cached, true
	}
	if p.envVar == "" {
		return "", false
	}
	value, ok := os.LookupEnv(p.envVar)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// Get returns the passphrase, prompting when Lookup finds nothing.
// An empty answer counts as the user declining.
func (p *Passphrase) Get(account string) (string, error) {
	if value, ok := p.Lookup(); ok {
		return value, nil
	}
	value, err := p.prompt(account)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", core.ErrUserRejected
	}
	return value, nil
}

// Remember caches a passphrase that unlocked the account
func (p *Passphrase) Remember(value string) {
	p.mu.Lock()
	p.cached = value
	p.mu.Unlock()
}

// Forget drops the cached passphrase
func (p *Passphrase) Forget() {
	p.mu.Lock()
	p.cached = ""
	p.mu.Unlock()
}

// TerminalPrompt reads a passphrase without echo. Without a terminal there is
// nobody to ask, which is reported as a missing provider.
func TerminalPrompt(in *os.File, out io.Writer) PromptFunc {
	return func(account string) (string, error) {
		fd := int(in.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("%w: keystore passphrase required and no terminal available", core.ErrProviderUnavailable)
		}
		fmt.Fprintf(out, "Passphrase for %s: ", account)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		return string(raw), nil
	}
}

var errNoAccount = errors.New("no account in keystore")
