package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vk/conflux/internal/app"
	"github.com/vk/conflux/internal/document"
)

func newApp(f *flags, args []string, opts []app.Option) (*app.App, error) {
	cfg, err := f.config(args)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, opts...)
}

func newRunCommand(f *flags, opts []app.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "run [CONFIG...]",
		Short: "Start the configured services and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, args, opts)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newCheckCommand(f *flags, opts []app.Option) *cobra.Command {
	return &cobra.Command{
		Use:   "check [CONFIG...]",
		Short: "Validate the configuration and print the activation plan without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, args, opts)
			if err != nil {
				return err
			}
			graph, plan, err := a.Plan(cmd.Context())
			if err != nil {
				return err
			}
			order, err := graph.TopoSort()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Activation order:")
			for i, addr := range order {
				fmt.Fprintf(out, "  %d. %s\n", i+1, addr)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\nUnit\tImport\tMode\tSource")
			for _, addr := range order {
				u := plan.Unit(addr)
				for _, b := range plan.Bindings(u) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", addr, b.Import, b.Import.Mode, b.Source())
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, h := range plan.Hints() {
				fmt.Fprintf(out, "warning: %s\n", h)
			}
			return nil
		},
	}
}

func newRenderCommand(f *flags, opts []app.Option) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "render [CONFIG...]",
		Short: "Print the merged and filtered configuration tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "xml", "yaml":
			default:
				return usageError("invalid format %q: must be 'xml' or 'yaml'", format)
			}
			a, err := newApp(f, args, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "yaml" {
				data, err := document.EncodeYAML(a.Tree())
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			_, err = fmt.Fprint(out, a.Tree().String())
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "xml", "Output format. Options: 'xml' or 'yaml'.")
	return cmd
}
