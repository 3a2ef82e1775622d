// Package cfg loads process settings, the delimited accounts file, and the
// per-session strategy configuration.
package cfg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Account is one validated line of the accounts file.
type Account struct {
	Remark      string // display label
	APIKey      string
	EOA         string // externally-owned account address
	PrivateKey  string
	ProxyWallet string // delegated order-routing address, resolved lazily when absent
	Socks5      string // outbound network proxy descriptor, optional

	// ResolveErr records a proxy-resolution failure for this account. It
	// never aborts loading of other accounts.
	ResolveErr error
}

// ParseError means a line had no viable interpretation; it aborts the load.
type ParseError struct {
	File   string
	Line   int
	Tokens int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed account line (%d tokens, want 4-6)", e.File, e.Line, e.Tokens)
}

// ProxyResolver supplies proxy wallet addresses for accounts that do not
// carry one in the file. Satisfied by *proxy.Resolver.
type ProxyResolver interface {
	Resolve(ctx context.Context, eoa string) (string, error)
}

// SplitLine flattens a mixed-delimiter account line into ordered tokens:
// pipe is the primary separator, runs of whitespace split within each field,
// empty tokens are dropped.
func SplitLine(line string) []string {
	var tokens []string
	for _, part := range strings.Split(line, "|") {
		tokens = append(tokens, strings.Fields(part)...)
	}
	return tokens
}

// IsWalletAddress reports whether tok looks like an EVM address: 0x prefix
// and exactly 42 characters. This is the disambiguation rule for the 5th
// token (proxy wallet vs socks5 descriptor).
func IsWalletAddress(tok string) bool {
	return len(tok) == 42 && strings.HasPrefix(tok, "0x")
}

func parseAccountLine(tokens []string) (Account, bool) {
	acc := Account{
		Remark:     tokens[0],
		APIKey:     tokens[1],
		EOA:        tokens[2],
		PrivateKey: tokens[3],
	}
	switch len(tokens) {
	case 4:
		return acc, true
	case 5:
		if IsWalletAddress(tokens[4]) {
			acc.ProxyWallet = tokens[4]
			return acc, true
		}
		acc.Socks5 = tokens[4]
		return acc, true
	default: // 6, legacy layout: proxy column then socks5 column
		if IsWalletAddress(tokens[4]) {
			acc.ProxyWallet = tokens[4]
		}
		acc.Socks5 = tokens[5]
		return acc, true
	}
}

// LoadAccounts parses the accounts file at path and resolves missing proxy
// wallets through res (skipped when res is nil). Blank lines and #-comments
// are ignored. A structurally invalid line aborts the whole load; a failed
// proxy resolution only marks that account.
func LoadAccounts(ctx context.Context, path string, res ProxyResolver) ([]Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer f.Close()

	var accounts []Account
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := SplitLine(line)
		if len(tokens) < 4 || len(tokens) > 6 {
			return nil, &ParseError{File: path, Line: lineNo, Tokens: len(tokens)}
		}
		acc, _ := parseAccountLine(tokens)
		accounts = append(accounts, acc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	if res != nil {
		resolveMissing(ctx, accounts, res)
	}
	return accounts, nil
}

func resolveMissing(ctx context.Context, accounts []Account, res ProxyResolver) {
	for i := range accounts {
		if accounts[i].ProxyWallet != "" {
			continue
		}
		addr, err := res.Resolve(ctx, accounts[i].EOA)
		if err != nil {
			accounts[i].ResolveErr = err
			log.Warn().Err(err).Str("account", accounts[i].Remark).Msg("proxy wallet resolution failed")
			continue
		}
		accounts[i].ProxyWallet = addr
	}
}

// LoadAccountsDir aggregates every *.txt, *.conf and *.cfg file in dir,
// skipping dot- and underscore-prefixed names. A file that fails to load is
// logged and skipped; the rest still load.
func LoadAccountsDir(ctx context.Context, dir string, res ProxyResolver) ([]Account, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read accounts dir: %w", err)
	}

	var all []Account
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		switch filepath.Ext(name) {
		case ".txt", ".conf", ".cfg":
		default:
			continue
		}
		accounts, err := LoadAccounts(ctx, filepath.Join(dir, name), res)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("accounts file skipped")
			continue
		}
		all = append(all, accounts...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no accounts loaded from %s", dir)
	}
	return all, nil
}
