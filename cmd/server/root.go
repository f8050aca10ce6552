package main

import (
	"github.com/spf13/cobra"
)

const app = "resumeai"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          app,
		Short:        "resumeai matches resumes against job descriptions with a usage quota",
		SilenceUsage: true,
	}

	serve := newServeCmd()
	root.RunE = serve.RunE
	root.AddCommand(serve, newResetUsageCmd(), newSetTierCmd())
	return root
}
