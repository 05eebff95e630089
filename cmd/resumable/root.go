package main

import (
	"github.com/spf13/cobra"
	"github.com/the127/resumable/internal/args"
	"github.com/the127/resumable/internal/client"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/storage/rest"
)

var rootCmd = &cobra.Command{
	Use:          "resumable",
	Short:        "Resumable and parallel uploads to a GCS compatible object store",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logging.Init()
		config.Init()
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		logging.Sync()
	},
}

func init() {
	args.Bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(parallelUploadCmd)
}

func newClient() *client.Client {
	raw := rest.NewClient(rest.OptionsFromConfig(config.C.Client))
	return client.NewClient(raw, client.OptionsFromConfig(config.C))
}
