package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"helicase/internal/config"
	"helicase/internal/daemon"
	"helicase/internal/ipc"
	"helicase/internal/logging"
	"helicase/internal/version"
)

func main() {
	flags := flag.NewFlagSet("helicased", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	configFlag := flags.String("config", "", "configuration file path")
	versionFlag := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(1)
	}

	if *versionFlag {
		fmt.Println(version.Version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolvedPath, exists, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *configFlag != "" && !exists {
		log.Fatalf("config file %s does not exist", resolvedPath)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "helicase.log")},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store := config.NewStore(cfg, resolvedPath)
	d, err := daemon.New(store, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if cfg.Daemon.REPL {
		server, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
		if err != nil {
			logger.Error("start IPC server", logging.Error(err))
			os.Exit(1)
		}
		defer server.Close()
		server.Serve()
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("helicased shutting down")
	d.Stop()
}
