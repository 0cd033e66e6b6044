// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

var (
	workerNumber    *uint
	socketCount     *uint
	allowCreds      *bool
	resolverAddr    *string
	dialTimeout     *time.Duration
	spinnerInterval *time.Duration
	debug           *bool
)

func newRootCmd() (rootCmd *cobra.Command) {
	rootCmd = &cobra.Command{
		Use:     "prewarm [flags] hostname [...]",
		Short:   "prewarm speculatively resolves and preconnects origins before they're actually needed",
		Version: "0.9",
		Args:    cobra.MinimumNArgs(1),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if *workerNumber < 1 || *workerNumber > 10 {
				return fmt.Errorf("--workers out of range [1..10]")
			}
			if *spinnerInterval < 10*time.Millisecond {
				return fmt.Errorf("--spinner must be at least 10ms")
			}
			log.SetHandler(clihandler.Default)
			if *debug {
				log.SetLevel(log.DebugLevel)
				log.Debug("debug logging enabled")
			} else {
				log.SetLevel(log.WarnLevel)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return WarmAndReport(context.Background(), args)
		},
	}
	// Sets up the flags.
	debug = rootCmd.PersistentFlags().Bool(
		"debug", false, "enable debugging output")
	workerNumber = rootCmd.PersistentFlags().Uint(
		"workers", 5, "number of DNS and preconnect dial workers")
	socketCount = rootCmd.PersistentFlags().Uint(
		"sockets", 1, "sockets to preconnect per origin (0 resolves only)")
	allowCreds = rootCmd.PersistentFlags().Bool(
		"credentials", true, "allow credentials on preconnected sockets")
	resolverAddr = rootCmd.PersistentFlags().String(
		"resolver", "", "DNS resolver address; defaults to the system resolver")
	dialTimeout = rootCmd.PersistentFlags().Duration(
		"dial-timeout", 10*time.Second, "timeout per speculative connection attempt")
	spinnerInterval = rootCmd.PersistentFlags().Duration(
		"spinner", 100*time.Millisecond, "spinner interval")
	return
}
