package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap-incubator/tinyocc/kv/config"
	"github.com/pingcap-incubator/tinyocc/kv/server"
	"github.com/pingcap-incubator/tinyocc/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	statusAddr string
	dbPath     string
	logLevel   string
	logFile    string
)

var (
	gitHash = "None"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tinyocc-server",
		Short: "Optimistic transaction coordinator of a single region",
		Run:   runServer,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.Flags().StringVar(&statusAddr, "status-addr", "", "status and metrics address")
	rootCmd.Flags().StringVar(&dbPath, "db-path", "", "directory to store data in")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "L", "", "log level: debug, info, warn, error, fatal")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log file path, stderr if empty")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(rootCmd.UsageString())
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	conf := loadConfig(cmd)
	log.SetLevelByString(conf.LogLevel)
	if len(conf.LogFile) > 0 {
		log.SetOutputFile(log.FileConfig{
			Filename:   conf.LogFile,
			MaxSizeMB:  300,
			MaxBackups: 10,
			MaxAgeDays: 28,
		})
	}
	defer log.Sync()
	log.Info("gitHash:", gitHash)
	log.Infof("conf %+v", conf)

	s := server.OpenServer(conf)
	if err := s.Start(); err != nil {
		log.Fatal(err)
	}

	sig := waitSignal()
	log.Infof("Got signal [%s] to exit.", sig)
	if err := s.Stop(); err != nil {
		log.Fatal(err)
	}
	log.Info("Server stopped.")
}

func loadConfig(cmd *cobra.Command) *config.Config {
	conf := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if conf, err = config.LoadFile(configPath); err != nil {
			log.Fatal(err)
		}
	}
	if cmd.Flags().Changed("status-addr") {
		conf.StatusAddr = statusAddr
	}
	if cmd.Flags().Changed("db-path") {
		conf.DBPath = dbPath
	}
	if cmd.Flags().Changed("log-level") {
		conf.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-file") {
		conf.LogFile = logFile
	}
	if err := conf.Validate(); err != nil {
		log.Fatal(err)
	}
	return conf
}

func waitSignal() os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	return <-sigCh
}
