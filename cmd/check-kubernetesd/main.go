package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/api"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/config"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/daemon"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8s"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/store"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/version"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/webapi"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/zabbix"
)

const joinTimeout = 3 * time.Second

var (
	configFile  string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("check-kubernetesd\n")
		fmt.Printf("Version:    %s\n", version.Version)
		fmt.Printf("Build Time: %s\n", version.BuildTime)
		fmt.Printf("Commit ID:  %s\n", version.CommitID)
		os.Exit(0)
	}

	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("%v", err)
	}
	setupLogger(cfg)

	logrus.WithFields(logrus.Fields{
		"version":    version.Version,
		"build_time": version.BuildTime,
	}).Info("Starting check-kubernetesd")

	restCfg, err := k8s.BuildRestConfig(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize cluster access: %v", err)
	}
	logrus.Infof("Initialized cluster access for %s", cfg.Kubernetes.ConfigType)

	client, err := k8s.NewClientFromRestConfig(restCfg, cfg)
	if err != nil {
		logrus.Fatalf("Failed to create cluster client: %v", err)
	}

	var sender zabbix.Sender
	if cfg.Zabbix.DryRun {
		sender = zabbix.DryRunSender{}
	} else {
		sender = zabbix.NewTrapperSender(cfg.Zabbix.Server)
	}

	inventory := webapi.NewClient(cfg.WebAPI.Host, cfg.WebAPI.Token, cfg.WebAPI.Cluster, cfg.WebAPI.VerifySSL)

	state := store.NewState()
	d := daemon.New(cfg, client, state, sender, inventory)
	d.Run()

	var status *api.StatusServer
	if cfg.Status.Port > 0 {
		status = api.NewStatusServer(state, d.Resources(), cfg.Status.Port)
		go status.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			d.DumpTimestamps()
		case syscall.SIGUSR2:
			d.DumpData()
		default:
			logrus.Infof("Signal handler called with signal %s... stopping (max %s)", sig, joinTimeout)
			if status != nil {
				status.Shutdown()
			}
			d.Stop(joinTimeout)
			logrus.Info("All tasks exited... exit check-kubernetesd")
			return
		}
	}
}

func setupLogger(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
