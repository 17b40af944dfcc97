package cmds

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/teammate/pkg/session"
	"github.com/go-go-golems/teammate/pkg/ui"
)

func NewSessionGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or forget the stored session",
	}

	cmd.AddCommand(NewSessionShowCommand())
	cmd.AddCommand(NewSessionResetCommand())

	return cmd
}

func NewSessionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := openStore(s)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			id, ok, err := store.Get(cmd.Context(), session.KeySessionID)
			if err != nil {
				return errors.Wrap(err, "could not read session id")
			}

			out := map[string]interface{}{
				"store": map[string]string{
					"kind": string(s.Store.Kind),
					"path": s.Store.Path,
				},
			}
			if ok {
				out["session_id"] = id
			} else {
				out["session_id"] = nil
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() {
				_ = enc.Close()
			}()
			return enc.Encode(out)
		},
	}
}

func NewSessionResetCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored session id, the next chat starts a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := openStore(s)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			id, ok, err := store.Get(cmd.Context(), session.KeySessionID)
			if err != nil {
				return errors.Wrap(err, "could not read session id")
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no stored session")
				return nil
			}

			if !yes {
				confirmed, err := confirm(fmt.Sprintf("Forget session %s? [y/n]", id))
				if err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}

			if err := store.Delete(cmd.Context(), session.KeySessionID); err != nil {
				return errors.Wrap(err, "could not delete session id")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot session %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func confirm(query string) (bool, error) {
	tty_, err := ui.OpenTTY()
	if err != nil {
		return false, errors.Wrap(err, "no terminal to confirm on, use --yes")
	}
	defer func() {
		_ = tty_.Close()
	}()

	in := &input.UI{
		Writer: tty_,
		Reader: tty_,
	}
	answer, err := in.Ask(query, &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "y", "n":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}
	return strings.ToLower(answer) == "y", nil
}
