/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// pull-msstore downloads the installer packages of a Microsoft Store product.
// It runs as a command line tool or as a GitHub Action.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/sethvargo/go-githubactions"
	"github.com/sht2017/Pull-Microsoft-Store/config"
	"github.com/sht2017/Pull-Microsoft-Store/engine"
	"github.com/sht2017/Pull-Microsoft-Store/failure"
	"github.com/spf13/cobra"
)

const utilName = "pull-msstore"

func underActions() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

func newRootCmd(out io.Writer) *cobra.Command {
	conf := config.NewMSConfig()

	cmd := &cobra.Command{
		Use:   utilName + " [productId]",
		Short: "Download the installer packages of a Microsoft Store product",
		Long: `Resolve a Microsoft Store product id through the storefront catalog and the
Windows Update FE3 service, then download every package file of that product's
package family into the output directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.Init(cmd.Flags())
			if len(args) == 1 && !cmd.Flags().Changed("product-id") {
				*conf.ProductID = args[0]
			}
			if underActions() {
				conf.ApplyActionInputs(githubactions.GetInput)
			}
			if err := conf.Validate(); err != nil {
				conf.Usage(cmd.ErrOrStderr())
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, conf, out)
		},
	}

	conf.AddFlags(cmd.Flags())
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	return cmd
}

func run(ctx context.Context, conf *config.MSConfig, out io.Writer) error {
	dumper, err := engine.PrepareTelemetry(utilName, conf)
	if err != nil {
		return err
	}
	defer dumper.Stop()

	display := engine.NewDisplay(ctx, conf)
	deps, err := engine.NewDependencies(ctx, conf, display)
	if err != nil {
		return err
	}
	if underActions() {
		deps.OnWarning = func(w failure.Warning) {
			githubactions.Warningf("%s", w)
		}
	}

	report, err := engine.New(deps).Extract(ctx, *conf.ProductID)
	display.Wait()
	if err != nil {
		return err
	}

	glog.Infof("Pulled %d of %d file(s) for %s into %s",
		report.Downloaded(), len(report.Files), report.Product.ProductID, *conf.OutputPath)
	if err := writeReport(out, report, *conf.Output); err != nil {
		return err
	}

	if underActions() {
		githubactions.SetOutput("status", "success")
	}
	return nil
}

func reportFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "%s: %s, stack:%+v\n", failure.Name(err), err, err)
	if underActions() {
		githubactions.Errorf("%s: %s", failure.Name(err), err)
	}
}

func main() {
	// glog writes to files by default; this is an interactive tool.
	_ = flag.Set("logtostderr", "true")

	cmd := newRootCmd(os.Stdout)
	err := cmd.Execute()
	glog.Flush()
	if err != nil {
		reportFailure(os.Stderr, err)
		os.Exit(1)
	}
}
