package cmds

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/teammate/pkg/protocol"
)

func NewSchemaCommand() *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "schema [kind...]",
		Short: "Print the JSON schema of protocol frames",
		Long: `Print the JSON schema of protocol frames, keyed by frame type. Without
arguments every frame of the chosen direction is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := protocol.Direction(direction)
			if d != protocol.DirectionInbound && d != protocol.DirectionOutbound {
				return errors.Errorf("unknown direction %q, use inbound or outbound", direction)
			}

			kinds := protocol.Kinds(d)
			if len(args) > 0 {
				kinds = nil
				for _, arg := range args {
					kinds = append(kinds, protocol.NormalizeKind(arg))
				}
			}

			out := map[string]interface{}{}
			for _, kind := range kinds {
				s, err := protocol.Schema(d, kind)
				if err != nil {
					return err
				}
				out[string(kind)] = s
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&direction, "direction", string(protocol.DirectionInbound), "Frame direction (inbound, outbound)")

	return cmd
}
