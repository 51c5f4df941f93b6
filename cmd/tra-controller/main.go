package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tra-project/tra/cmd"
	"github.com/tra-project/tra/internal/banner"
	"github.com/tra-project/tra/internal/controller"
	"github.com/tra-project/tra/internal/peerrpc"
)

var controllerConfiguration struct {
	listenAddr string
}

func controllerMain(_ *cobra.Command, _ []string) error {
	directory := controller.NewDirectory()
	server := peerrpc.NewControllerServer(directory)

	lis, err := peerrpc.Listen(controllerConfiguration.listenAddr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %q", controllerConfiguration.listenAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)
	go func() {
		<-signalTermination
		cancel()
	}()

	go func() {
		if err := server.Serve(lis); err != nil {
			cmd.Warning(err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	fmt.Printf("controller listening on %s\n", lis.Addr())

	commands := &controller.Commands{Directory: directory, Cache: peerrpc.NewCache()}
	prompt := &controller.Prompt{Commands: commands, Banner: banner.NewPrinter(os.Stdout)}

	return prompt.Run(ctx, os.Stdin, os.Stdout)
}

var rootCommand = &cobra.Command{
	Use:          "tra-controller",
	Short:        "Runs the TRA controller's directory service and operator prompt",
	SilenceUsage: true,
	RunE:         controllerMain,
}

func init() {
	flags := rootCommand.Flags()
	flags.StringVar(&controllerConfiguration.listenAddr, "listen", ":7760", "The address to listen on for replica registration")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
