package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/gridlock/cmd/lock"
	"github.com/ValentinKolb/gridlock/cmd/rwlock"
	"github.com/ValentinKolb/gridlock/cmd/serve"
	"github.com/ValentinKolb/gridlock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "gridlock",
		Short: "distributed lock service",
		Long: fmt.Sprintf(`gridlock (v%s)

A distributed lock service written in Go. Exclusive and read/write locks
are kept in a partitioned store, replicated with RAFT, and released
automatically when the member holding them leaves the cluster.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gridlock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gridlock v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(rwlock.RWLockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, grpc)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
