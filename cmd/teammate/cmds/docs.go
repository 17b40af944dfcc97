package cmds

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/teammate/pkg/doc"
)

func NewDocsCommand() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "docs [topic]",
		Short: "Show help topics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				topics, err := doc.Topics()
				if err != nil {
					return err
				}
				for _, t := range topics {
					fmt.Fprintf(w, "%-16s %s\n", t.Slug, t.Short)
				}
				return nil
			}

			topic, err := doc.Get(args[0])
			if err != nil {
				return err
			}
			if raw || !isatty.IsTerminal(os.Stdout.Fd()) {
				_, err = fmt.Fprint(w, topic.Content)
				return err
			}

			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return err
			}
			out, err := r.Render(topic.Content)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(w, out)
			return err
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the markdown source")

	return cmd
}
