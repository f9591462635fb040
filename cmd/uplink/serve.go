package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/agentdeck/uplink/internal/action"
	"github.com/agentdeck/uplink/internal/auth"
	"github.com/agentdeck/uplink/internal/config"
	"github.com/agentdeck/uplink/internal/mdns"
	"github.com/agentdeck/uplink/internal/stats"
	"github.com/agentdeck/uplink/internal/uplink"
)

// serverName is the product name reported by /api/info and advertised
// over mDNS.
const serverName = "agentdeck-uplink"

// ServeConfig holds the configuration for the serve command.
type ServeConfig struct {
	Config           string
	Addr             string
	RequireAPIKey    bool
	APIKey           string
	APIKeyHash       string
	TLSCert          string
	TLSKey           string
	DBPath           string
	RequestTimeoutMs int
	MdnsEnabled      bool
	LogFile          string
	QR               bool
}

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &ServeConfig{}

	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.agentdeck/uplink.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Address for the server (default: 127.0.0.1:7465)")
	fs.BoolVar(&cfg.RequireAPIKey, "require-api-key", false, "Require an API key for WebSocket connections")
	fs.StringVar(&cfg.APIKey, "api-key", "", "Shared secret clients must present as the apiKey query parameter")
	fs.StringVar(&cfg.APIKeyHash, "api-key-hash", "", "bcrypt hash of the shared secret (see 'uplink hash-key')")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "Path to TLS certificate file (enables WSS with --tls-key)")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "Path to TLS key file")
	fs.StringVar(&cfg.DBPath, "db", "", "Path to the invocation log database (default: ~/.agentdeck/uplink.db, 'none' disables)")
	fs.IntVar(&cfg.RequestTimeoutMs, "request-timeout-ms", 0, "Bound action handler execution in ms (0 = no timeout)")
	fs.BoolVar(&cfg.MdnsEnabled, "mdns", false, "Enable mDNS/Bonjour discovery (LAN-visible)")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Log file path (default: stderr)")
	fs.BoolVar(&cfg.QR, "qr", false, "Display the connect URL as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: uplink serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// Track which flags were explicitly set on the command line, so a
	// config file boolean can still be overridden with --flag=false.
	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	// Seed the default config file on first run, so users have a place
	// to put settings. An existing file is never touched.
	if cfg.Config == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			if err := config.WriteDefault(path); err != nil {
				fmt.Fprintf(stderr, "Warning: failed to write default config: %v\n", err)
			}
		}
	}

	// Load config file and merge with CLI flags.
	// CLI flags take precedence over file values.
	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Addr == "" {
		cfg.Addr = fileCfg.Addr
	}
	if !explicitFlags["require-api-key"] {
		cfg.RequireAPIKey = fileCfg.RequireAPIKey
	}
	if cfg.APIKey == "" {
		cfg.APIKey = fileCfg.APIKey
	}
	if cfg.APIKeyHash == "" {
		cfg.APIKeyHash = fileCfg.APIKeyHash
	}
	if cfg.TLSCert == "" {
		cfg.TLSCert = fileCfg.TLSCert
	}
	if cfg.TLSKey == "" {
		cfg.TLSKey = fileCfg.TLSKey
	}
	if cfg.DBPath == "" {
		cfg.DBPath = fileCfg.DBPath
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = fileCfg.RequestTimeoutMs
	}
	if !explicitFlags["mdns"] {
		cfg.MdnsEnabled = fileCfg.MdnsEnabled
	}
	if cfg.LogFile == "" {
		cfg.LogFile = fileCfg.LogFile
	}
	if !explicitFlags["qr"] {
		cfg.QR = fileCfg.QR
	}

	merged := &config.Config{
		Addr:   cfg.Addr,
		DBPath: cfg.DBPath,
	}
	merged.ApplyDefaults()
	cfg.Addr = merged.Addr
	cfg.DBPath = merged.DBPath

	if cfg.RequireAPIKey && cfg.APIKey == "" && cfg.APIKeyHash == "" {
		fmt.Fprintf(stderr, "Error: --require-api-key is set but no --api-key or --api-key-hash given\n")
		return 1
	}

	// Redirect the server log when a log file is configured.
	var logFile *os.File
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			fmt.Fprintf(stderr, "Error: failed to create log directory: %v\n", err)
			return 1
		}
		logFile, err = os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open log file: %v\n", err)
			return 1
		}
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	// Open the invocation log unless disabled. A broken database is
	// fatal at startup rather than silently losing history later.
	var store *stats.Store
	if cfg.DBPath != "none" {
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
				fmt.Fprintf(stderr, "Error: failed to create data directory: %v\n", err)
				return 1
			}
		}
		store, err = stats.Open(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open invocation log: %v\n", err)
			return 1
		}
		defer store.Close()
	}

	gate := auth.NewGate(auth.GateConfig{
		Require: cfg.RequireAPIKey,
		Key:     cfg.APIKey,
		KeyHash: cfg.APIKeyHash,
	})

	registry := action.NewRegistry()

	srv := uplink.NewServer(uplink.Options{
		Addr:           cfg.Addr,
		Name:           serverName,
		Version:        Version,
		Gate:           gate,
		Registry:       registry,
		Stats:          store,
		RequestTimeout: time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		TLSCert:        cfg.TLSCert,
		TLSKey:         cfg.TLSKey,
	})

	action.RegisterBuiltins(registry, action.BuiltinDeps{
		StartedAt:   time.Now(),
		ClientCount: srv.ClientCount,
		Stats:       store,
	})

	if err := srv.Start(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	tlsEnabled := cfg.TLSCert != "" && cfg.TLSKey != ""
	scheme := "ws"
	if tlsEnabled {
		scheme = "wss"
	}
	connectURL := fmt.Sprintf("%s://%s/ws", scheme, srv.BoundAddr())

	fmt.Fprintf(stdout, "Uplink server: %s\n", srv.BoundAddr())
	fmt.Fprintf(stdout, "Connect URL:   %s\n", connectURL)
	if store != nil {
		fmt.Fprintf(stdout, "Invocation log: %s\n", cfg.DBPath)
	} else {
		fmt.Fprintln(stdout, "Invocation log: disabled")
	}
	if cfg.RequireAPIKey {
		fmt.Fprintln(stdout, "Authentication: ENABLED (clients must pass ?apiKey=...)")
	} else {
		fmt.Fprintln(stdout, "Authentication: DISABLED (use --require-api-key to enable)")
	}

	if cfg.QR {
		DisplayConnectQR(stdout, connectURL)
	}

	// Start mDNS advertiser if enabled.
	// Discovery only reveals presence; the API key is still required.
	var mdnsAdvertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		port := 7465
		if _, portStr, err := net.SplitHostPort(srv.BoundAddr()); err == nil {
			if p, err := strconv.Atoi(portStr); err == nil && p > 0 {
				port = p
			}
		}
		mdnsAdvertiser = mdns.NewAdvertiser(mdns.Config{
			Port:       port,
			ServerName: serverName,
		})
		if err := mdnsAdvertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to start mDNS discovery: %v\n", err)
		} else {
			fmt.Fprintln(stdout, "mDNS discovery: ENABLED (visible on LAN)")
		}
	}

	fmt.Fprintln(stdout, "Press Ctrl+C to stop.")

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigCh
	fmt.Fprintf(stdout, "\nReceived signal %v, stopping...\n", sig)

	// Cleanup in reverse order of creation
	if mdnsAdvertiser != nil {
		mdnsAdvertiser.Stop()
	}
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(stderr, "Warning: shutdown error: %v\n", err)
	}

	return 0
}
