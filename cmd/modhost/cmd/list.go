package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modhost/config"
	"github.com/GoCodeAlone/modhost/loader"
	"github.com/GoCodeAlone/modhost/metadata"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var plugins string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the plugin list with the metadata of every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("plugins") {
				plugins = config.Default().PluginsFile
			}
			return list(cmd.OutOrStdout(), plugins)
		},
	}
	cmd.Flags().StringVarP(&plugins, "plugins", "p", "", "plugin list file")
	return cmd
}

func list(out io.Writer, listFile string) error {
	pl, err := config.LoadPluginList(listFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tENTRY\tDEPENDENCIES\tSOURCE")
	for _, entry := range pl.Plugins {
		source := entry.Source(listFile)
		e, err := describe(source, entry.ID)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s (%v)\n", entry.ID, displaySource(source), err)
			continue
		}
		deps := make([]string, len(e.Dependencies))
		for i, d := range e.Dependencies {
			deps[i] = d.ID + " " + d.Version
		}
		dependencies := strings.Join(deps, ", ")
		if dependencies == "" {
			dependencies = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Version, e.Entry, dependencies, displaySource(source))
	}
	return w.Flush()
}

func describe(source, id string) (metadata.Entry, error) {
	src, err := loader.Open(source)
	if err != nil {
		return metadata.Entry{}, err
	}
	if src == nil {
		src = loader.Host()
	}
	doc, err := metadata.Read(src)
	if err != nil {
		return metadata.Entry{}, err
	}
	e, ok := doc.Lookup(id)
	if !ok {
		return metadata.Entry{}, fmt.Errorf("no metadata for %q", id)
	}
	return e, nil
}

func displaySource(source string) string {
	if source == "" {
		return "<host>"
	}
	return source
}
