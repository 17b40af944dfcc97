package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/go-go-golems/teammate/pkg/conversation"
)

// TranscriptPrinterFunc returns a handler that renders the history as a plain
// transcript. Streamed replies are printed incrementally, each entry once.
func TranscriptPrinterFunc(w io.Writer, showPhases bool) func(msg *message.Message) error {
	printed := map[string]int{}
	terminated := map[string]bool{}

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventHistoryUpdated:
			for _, entry := range p_.Entries {
				if err := printEntry(w, entry, printed, terminated); err != nil {
					return err
				}
			}

		case *EventPhaseChanged:
			if showPhases {
				_, err = fmt.Fprintf(w, "[%s]\n", p_.To)
				if err != nil {
					return err
				}
			}

		case *EventError:
			_, err = fmt.Fprintf(w, "[error] %s\n", p_.ErrorString)
			if err != nil {
				return err
			}
		}

		return nil
	}
}

func printEntry(w io.Writer, entry conversation.Entry, printed map[string]int, terminated map[string]bool) error {
	if terminated[entry.ID] {
		return nil
	}

	n, seen := printed[entry.ID]
	if !seen {
		label := "remote"
		if entry.IsUser() {
			label = "you"
		}
		if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
			return err
		}
	}
	if n > len(entry.Text) {
		// a snapshot replaced the text, start over on a fresh line
		if _, err := fmt.Fprintf(w, "\n%s", entry.Text); err != nil {
			return err
		}
	} else if _, err := io.WriteString(w, entry.Text[n:]); err != nil {
		return err
	}
	printed[entry.ID] = len(entry.Text)

	if entry.Complete {
		terminated[entry.ID] = true
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
