package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRoutesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Load the deployment descriptor and print its routing table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			dep, err := loadDeployment(cfg, nil, zap.NewNop())
			if err != nil {
				return err
			}
			return printRoutes(cmd.OutOrStdout(), dep)
		},
	}
}

func printRoutes(out io.Writer, dep *deployment) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tHANDLER\tIMPL\tFILTERS")
	for _, r := range dep.routes.Routes() {
		impl := "?"
		if h, ok := dep.routes.Handler(r.HandlerID); ok {
			impl = h.Impl
		}
		filters := strings.Join(dep.routes.ResolveFilters(r.Pattern), ",")
		if filters == "" {
			filters = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Pattern, r.HandlerID, impl, filters)
	}
	return tw.Flush()
}
