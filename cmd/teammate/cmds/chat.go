package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/teammate/pkg/client"
	"github.com/go-go-golems/teammate/pkg/events"
	"github.com/go-go-golems/teammate/pkg/helpers"
	"github.com/go-go-golems/teammate/pkg/transport"
	"github.com/go-go-golems/teammate/pkg/ui"
)

type chatOptions struct {
	plain       bool
	printEvents bool
	showPhases  bool
	messages    []string
	markdown    bool
}

func NewChatCommand() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat session, resuming the stored one",
		Long: `Open the chat session. The session id is kept in the session store, so
restarting the command resumes the same conversation.

Without a terminal, or with --plain, lines read from stdin are sent as messages
and the transcript is printed to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Line mode instead of the terminal UI")
	cmd.Flags().BoolVar(&opts.printEvents, "print-events", false, "Print raw session events as YAML (line mode)")
	cmd.Flags().BoolVar(&opts.showPhases, "show-phases", false, "Print connection phase changes (line mode)")
	cmd.Flags().StringArrayVarP(&opts.messages, "message", "m", nil, "Send message, wait for the reply and exit (repeatable)")
	cmd.Flags().BoolVar(&opts.markdown, "markdown", true, "Render replies as markdown (terminal UI)")

	return cmd
}

func runChat(ctx context.Context, opts *chatOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

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

	plain := opts.plain || len(opts.messages) > 0 || !isatty.IsTerminal(os.Stdout.Fd())
	if !plain && viper.GetString("log-file") == "" {
		// the terminal UI owns stderr
		log.Logger = zerolog.Nop()
	}

	decoder, err := s.Decoder()
	if err != nil {
		return err
	}
	tr, err := transport.NewWebSocketTransport(s.TransportConfig(), transport.WithDecoder(decoder))
	if err != nil {
		return errors.Wrap(err, "could not create transport")
	}

	router, err := events.NewEventRouter(
		events.WithVerbose(viper.GetBool("verbose")),
		events.WithLogger(helpers.NewWatermill(log.Logger)),
	)
	if err != nil {
		return errors.Wrap(err, "could not create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	sink := events.NewWatermillSink(router.Publisher, events.TopicSession)
	c := client.New(tr, store, client.WithEventSink(sink))

	if plain {
		return runPlainChat(ctx, c, router, opts)
	}
	return runTUIChat(ctx, c, router, opts)
}

func runPlainChat(ctx context.Context, c *client.Client, router *events.EventRouter, opts *chatOptions) error {
	router.AddHandler("transcript", events.TopicSession, events.TranscriptPrinterFunc(os.Stdout, opts.showPhases))
	if opts.printEvents {
		router.AddHandler("raw-events", events.TopicSession, router.DumpRawEvents)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		return c.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			_ = c.Close()
		}()
		<-router.Running()

		if len(opts.messages) > 0 {
			return sendAndWait(ctx, c, opts.messages)
		}
		return sendLines(ctx, c, os.Stdin)
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func sendAndWait(ctx context.Context, c *client.Client, messages []string) error {
	lastID := ""
	for _, m := range messages {
		lastID = uuid.NewString()
		if err := c.SendText(ctx, lastID, m); err != nil {
			return err
		}
	}
	return waitForReply(ctx, c, lastID)
}

// sendLines sends every line of r. On EOF it waits for the reply to the last
// message.
func sendLines(ctx context.Context, c *client.Client, r io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	lastID := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if lastID == "" {
					return nil
				}
				return waitForReply(ctx, c, lastID)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lastID = uuid.NewString()
			if err := c.SendText(ctx, lastID, line); err != nil {
				return err
			}
		}
	}
}

func waitForReply(ctx context.Context, c *client.Client, id string) error {
	_, err := c.WaitFor(ctx, func(s client.Snapshot) bool {
		idx := s.History.Index(id)
		if idx < 0 {
			return false
		}
		for _, e := range s.History[idx+1:] {
			if !e.IsUser() && e.Complete {
				return true
			}
		}
		return false
	})
	if err != nil {
		return errors.Wrapf(err, "no reply to message %s", id)
	}
	return nil
}

func runTUIChat(ctx context.Context, c *client.Client, router *events.EventRouter, opts *chatOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(c, ui.WithMarkdown(opts.markdown))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	router.AddHandler("ui", events.TopicSession, ui.ForwardFunc(p))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		return c.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			_ = c.Close()
		}()
		<-router.Running()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "terminal UI failed")
		}
		return nil
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err == nil {
		fmt.Fprintf(os.Stderr, "session %s\n", c.SessionID())
	}
	return err
}
