package main

import (
	"bufio"
	"os"

	"bandsched/backend/internal/client"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// app holds what every subcommand needs once flags are parsed.
type app struct {
	server   string
	stateDir string

	client  *client.Client
	session *client.Session
	nav     *cliNavigator
	in      *bufio.Reader
}

// NewRootCmd creates the root command for the CLI client.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "bandsched",
		Short:         "Band scheduling command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	server := os.Getenv("BANDSCHED_SERVER")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&a.server, "server", server, "API base URL")
	cmd.PersistentFlags().StringVar(&a.stateDir, "state-dir", "", "directory holding the session token (default: user config dir)")

	cmd.AddCommand(newRegisterCmd(a))
	cmd.AddCommand(newLoginCmd(a))
	cmd.AddCommand(newLogoutCmd(a))
	cmd.AddCommand(newWhoamiCmd(a))

	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	dir := a.stateDir
	if dir == "" {
		var err error
		if dir, err = client.DefaultStateDir(); err != nil {
			return err
		}
	}
	tokens := client.NewFileTokenStore(dir)

	location := "/" + cmd.Name()
	a.nav = &cliNavigator{location: location, w: cmd.ErrOrStderr()}
	a.client = client.New(a.server, tokens, client.WithNavigator(a.nav))
	a.session = client.NewSession(client.NewAuthAPI(a.client), tokens)
	a.session.Watch(a.client)
	a.in = bufio.NewReader(cmd.InOrStdin())
	return nil
}
