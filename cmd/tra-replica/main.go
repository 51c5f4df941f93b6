package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tra-project/tra/cmd"
	"github.com/tra-project/tra/internal/replica"
	"github.com/tra-project/tra/pkg/logging"
)

var replicaConfiguration struct {
	id             int32
	home           string
	controllerAddr string
	bindHost       string
	ignore         []string
}

func replicaMain(_ *cobra.Command, _ []string) error {
	// Load a .env file from the working directory, if present, the same way
	// pkg/compose reads Compose environment files: missing is fine, a
	// malformed file is not.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to load .env file")
	}

	if replicaConfiguration.id == 0 {
		return errors.New("--id is required and must be non-zero")
	}
	if replicaConfiguration.home == "" {
		return errors.New("--home is required")
	}
	if replicaConfiguration.controllerAddr == "" {
		return errors.New("--controller is required")
	}

	home, err := filepath.Abs(replicaConfiguration.home)
	if err != nil {
		return errors.Wrap(err, "unable to resolve home directory")
	}

	logger := logging.RootLogger.Sublogger("replica")

	r, err := replica.New(replica.Config{
		ID:             replicaConfiguration.id,
		Home:           home,
		ControllerAddr: replicaConfiguration.controllerAddr,
		BindHost:       replicaConfiguration.bindHost,
		IgnorePatterns: replicaConfiguration.ignore,
	}, logger)
	if err != nil {
		return errors.Wrap(err, "unable to initialize replica")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)
	go func() {
		<-signalTermination
		cancel()
	}()

	return r.Run(ctx)
}

var rootCommand = &cobra.Command{
	Use:          "tra-replica",
	Short:        "Runs a TRA replica process",
	SilenceUsage: true,
	RunE:         replicaMain,
}

func init() {
	flags := rootCommand.Flags()
	flags.Int32Var(&replicaConfiguration.id, "id", 0, "This replica's numeric identity")
	flags.StringVar(&replicaConfiguration.home, "home", "", "The directory this replica replicates")
	flags.StringVar(&replicaConfiguration.controllerAddr, "controller", "", "The controller's directory service address (host:port)")
	flags.StringVar(&replicaConfiguration.bindHost, "bind", "", "The host to bind the peer listener on (default: all interfaces)")
	flags.StringArrayVar(&replicaConfiguration.ignore, "ignore", nil, "A gitignore-style pattern to exclude from replication (may be specified multiple times)")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
