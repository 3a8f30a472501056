package main

import (
	"fmt"
	"html"
	"io"

	"github.com/couchbase/cluster-ready/common/metadataclient"
	"github.com/spf13/cobra"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Print the client configuration docs in HTML",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return writeConfigDocs(cmd.OutOrStdout(), metadataclient.ConfigDocs())
	},
}

func writeConfigDocs(w io.Writer, docs []metadataclient.ConfigDoc) error {
	_, err := fmt.Fprintln(w, "<table class=\"data-table\"><tbody>")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, "<tr><th>Name</th><th>Description</th><th>Default</th></tr>")
	if err != nil {
		return err
	}

	for _, doc := range docs {
		_, err = fmt.Fprintf(w, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(doc.Key),
			html.EscapeString(doc.Description),
			html.EscapeString(doc.Default))
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprintln(w, "</tbody></table>")
	return err
}
