package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/flowave-io/ctlpanel/internal/audit"
	"github.com/flowave-io/ctlpanel/internal/cli"
	"github.com/flowave-io/ctlpanel/internal/config"
	"github.com/flowave-io/ctlpanel/internal/encoding/jsonx"
	"github.com/flowave-io/ctlpanel/internal/lineedit"
	"github.com/flowave-io/ctlpanel/internal/monitor"
	"github.com/flowave-io/ctlpanel/internal/registry"
	"github.com/flowave-io/ctlpanel/internal/sshserver"
	"github.com/flowave-io/ctlpanel/internal/status"
	"github.com/flowave-io/ctlpanel/internal/store"
	"github.com/flowave-io/ctlpanel/pkg/log"
	"github.com/hashicorp/go-multierror"
)

func loadConfig(name string, args []string) (config.Settings, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	path := fs.String("config", config.DefaultPath, "Path to the HCL configuration file")
	if err := fs.Parse(args); err != nil {
		return config.Settings{}, fs, err
	}
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	s, err := config.Load(*path, explicit)
	return s, fs, err
}

// services holds the state shared by the serve and console commands.
type services struct {
	settings config.Settings
	store    *store.Store
	auditor  *audit.Auditor
	registry *registry.Registry
	banner   atomic.Value
	closers  []func() error
}

func openServices(s config.Settings) (*services, error) {
	if err := log.Init(s.LogFile()); err != nil {
		return nil, err
	}
	if s.DebugRaiseErrors {
		log.Warn("!!! Working in development mode, raising errors when they come up !!!")
		log.Warn("!!!      > Do not use this in a production environment. <       !!!")
	}
	st, err := store.Open(store.Options{Path: s.DatabasePath, PasswordLog: s.PasswordLog()})
	if err != nil {
		return nil, err
	}
	rt := &services{settings: s, store: st, registry: registry.New(s.MaxConnections)}
	rt.closers = append(rt.closers, st.Close, log.Close)
	rt.auditor, err = audit.NewAuditor(st.DB(), s.AuditRetentionDays)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.banner.Store(s.Banner)
	return rt, nil
}

func (rt *services) deps() cli.Deps {
	return cli.Deps{
		Store:    rt.store,
		Audit:    rt.auditor,
		Registry: rt.registry,
		Options:  lineedit.Options{InPlaceHistory: rt.settings.InPlaceHistory},
		Banner:   func() string { return rt.banner.Load().(string) },
		Debug:    rt.settings.DebugRaiseErrors,
	}
}

// Close releases everything in reverse order and reports every failure.
func (rt *services) Close() error {
	var result *multierror.Error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	rt.closers = nil
	return result.ErrorOrNil()
}

// watchBanner reloads the banner when the config file changes.
func (rt *services) watchBanner(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	w, err := monitor.WatchFile(path, func() {
		next := config.Defaults()
		if err := config.LoadFile(path, &next); err != nil {
			log.Warnf("Config reload failed: %v", err)
			return
		}
		rt.banner.Store(next.Banner)
		log.Info("Reloaded banner from", path)
	})
	if err != nil {
		log.Warnf("Cannot watch %s: %v", path, err)
		return
	}
	rt.closers = append(rt.closers, w.Close)
}

func serveCmd(args []string) error {
	s, fs, err := loadConfig("serve", args)
	if err != nil {
		return err
	}
	rt, err := openServices(s)
	if err != nil {
		return err
	}
	defer rt.Close()

	if s.AuditPurgeSchedule != "" {
		stop, err := rt.auditor.SchedulePurge(s.AuditPurgeSchedule)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() error { stop(); return nil })
	}
	rt.watchBanner(fs.Lookup("config").Value.String())

	key, created, err := sshserver.LoadOrCreateHostKey(s.HostKeyFile())
	if err != nil {
		return err
	}
	if created {
		log.Info("Generated new host key", s.HostKeyFile())
	}
	log.Info("Host key fingerprint", sshserver.Fingerprint(key))

	srv := sshserver.New(s.ListenAddr, key, rt.store, rt.deps())
	errCh := make(chan error, 2)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Infof("Listening for SSH connections on %s", s.ListenAddr)

	var statusSrv *http.Server
	if s.StatusAddr != "" {
		statusSrv = &http.Server{Addr: s.StatusAddr, Handler: status.NewRouter(rt.registry, version), ReadHeaderTimeout: 5 * time.Second}
		go func() { errCh <- statusSrv.ListenAndServe() }()
		log.Infof("Status endpoint on %s", s.StatusAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("Shutting down on", sig)
	case err := <-errCh:
		if !errors.Is(err, sshserver.ErrServerClosed) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server stopped:", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var result *multierror.Error
	if err := srv.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("ssh shutdown: %w", err))
	}
	if statusSrv != nil {
		if err := statusSrv.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("status shutdown: %w", err))
		}
	}
	if err := rt.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func consoleCmd(args []string) error {
	s, _, err := loadConfig("console", args)
	if err != nil {
		return err
	}
	rt, err := openServices(s)
	if err != nil {
		return err
	}
	defer rt.Close()
	return cli.RunConsole(rt.deps())
}

func keygenCmd(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	dir := fs.String("dir", config.Defaults().KeyDir, "Directory for the host key")
	force := fs.Bool("force", false, "Replace an existing key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s := config.Defaults()
	s.KeyDir = *dir
	key, err := sshserver.WriteHostKey(s.HostKeyFile(), *force)
	if err != nil {
		return err
	}
	fmt.Println("Wrote", s.HostKeyFile())
	fmt.Println("Fingerprint:", sshserver.Fingerprint(key))
	return nil
}

func configCmd(args []string) error {
	s, _, err := loadConfig("config", args)
	if err != nil {
		return err
	}
	b, err := jsonx.Marshal(s)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
