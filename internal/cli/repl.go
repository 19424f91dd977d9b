// Package cli implements the interactive chat loop: free text becomes
// conversation turns, reserved words drive session management.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/orchestrator"
	"github.com/datakettle/dp-composer/internal/store"
)

// Conversation is the slice of the composer the chat loop drives.
// *runtime.Composer satisfies it.
type Conversation interface {
	HandleTurn(ctx context.Context, sessionID, message string) (*orchestrator.TurnResult, error)
	Greeting(ctx context.Context, sessionID string) (string, error)
	Progress(ctx context.Context, sessionID string) (*orchestrator.Progress, error)
	Reset(ctx context.Context, sessionID string) error
	State(ctx context.Context, sessionID string) (*domain.ConversationState, error)
	Sessions(ctx context.Context) ([]store.SessionInfo, error)
	NewSession() string
}

// historyPreview caps how much of each turn the history command shows.
const historyPreview = 100

// REPL runs the interactive chat session.
type REPL struct {
	conv      Conversation
	sessionID string
	in        io.Reader
	out       io.Writer
}

// Option configures a REPL.
type Option func(*REPL)

// WithInput overrides the input stream (default: stdin).
func WithInput(in io.Reader) Option {
	return func(r *REPL) {
		r.in = in
	}
}

// WithOutput overrides the output stream (default: stdout).
func WithOutput(out io.Writer) Option {
	return func(r *REPL) {
		r.out = out
	}
}

// New creates a chat loop over conv. An empty sessionID allocates a fresh
// session.
func New(conv Conversation, sessionID string, opts ...Option) *REPL {
	r := &REPL{
		conv:      conv,
		sessionID: sessionID,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sessionID == "" {
		r.sessionID = conv.NewSession()
	}
	return r
}

// Run reads lines until quit, EOF, or ctx cancellation. Returns nil on a
// graceful exit; only input-stream failures are errors.
func (r *REPL) Run(ctx context.Context) error {
	r.printf("dp-composer interactive chat\n")
	r.printf("Type 'help' for commands, 'quit' to exit.\n")
	r.printf("session: %s\n\n", r.sessionID)

	r.greet(ctx)

	scanner := bufio.NewScanner(r.in)
	for {
		if ctx.Err() != nil {
			r.printf("\nGoodbye.\n")
			return nil
		}

		r.printf("you> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			// EOF counts as a graceful quit.
			r.printf("\nGoodbye.\n")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := r.dispatch(ctx, line); done {
			return nil
		}
	}
}

// dispatch handles one input line, reporting whether the loop should end.
func (r *REPL) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "bye":
		if len(fields) == 1 {
			r.printf("Goodbye.\n")
			return true
		}

	case "help":
		if len(fields) == 1 {
			r.help()
			return false
		}

	case "history":
		if len(fields) == 1 {
			r.history(ctx)
			return false
		}

	case "clear", "reset":
		if len(fields) == 1 {
			r.reset(ctx)
			return false
		}

	case "session":
		if len(fields) == 1 {
			r.printf("session: %s\n", r.sessionID)
			return false
		}

	case "sessions":
		if len(fields) == 1 {
			r.sessions(ctx)
			return false
		}

	case "state":
		if len(fields) == 1 {
			r.state(ctx)
			return false
		}

	case "progress":
		if len(fields) == 1 {
			r.progress(ctx)
			return false
		}

	case "switch":
		if len(fields) != 2 {
			r.printf("usage: switch <session-id>\n")
			return false
		}
		r.switchSession(ctx, fields[1])
		return false
	}

	// Anything else, reserved words followed by more text included, is a
	// message for the agent.
	r.turn(ctx, line)
	return false
}

func (r *REPL) turn(ctx context.Context, message string) {
	result, err := r.conv.HandleTurn(ctx, r.sessionID, message)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}

	r.printf("composer> %s\n", result.Reply)
	if len(result.ChangedFields) > 0 {
		r.printf("  captured: %s\n", strings.Join(result.ChangedFields, ", "))
	}
	if result.Degraded {
		r.printf("  (extraction service unavailable; nothing was recorded this turn)\n")
	}
	if result.State == orchestrator.StateAllComplete {
		r.printf("  all topics complete — 'state' shows the full composition\n")
	}
}

func (r *REPL) greet(ctx context.Context) {
	greeting, err := r.conv.Greeting(ctx, r.sessionID)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.printf("composer> %s\n", greeting)
}

func (r *REPL) help() {
	r.printf(`Commands:
  help           show this help
  history        show the conversation so far
  clear, reset   wipe this session's captured fields and history
  session        show the current session id
  sessions       list stored sessions
  switch <id>    continue a different session
  state          dump the captured fields as JSON
  progress       show per-topic completion
  quit, exit, bye  leave the chat

Anything else is sent to the composer as a message.
`)
}

func (r *REPL) history(ctx context.Context) {
	state, err := r.conv.State(ctx, r.sessionID)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	if len(state.History) == 0 {
		r.printf("no conversation history yet\n")
		return
	}
	for i, turn := range state.History {
		content := turn.Content
		if len(content) > historyPreview {
			content = content[:historyPreview] + "..."
		}
		r.printf("%d. %s: %s\n", i+1, strings.ToUpper(turn.Role), content)
	}
}

func (r *REPL) reset(ctx context.Context) {
	if err := r.conv.Reset(ctx, r.sessionID); err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.printf("session cleared\n")
	r.greet(ctx)
}

func (r *REPL) sessions(ctx context.Context) {
	infos, err := r.conv.Sessions(ctx)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	if len(infos) == 0 {
		r.printf("no stored sessions\n")
		return
	}
	for _, info := range infos {
		marker := " "
		if info.SessionID == r.sessionID {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %s", marker, info.SessionID, info.LastUpdated.Format("2006-01-02 15:04"))
		if info.Summary != "" {
			line += "  " + info.Summary
		}
		r.printf("%s\n", line)
	}
}

func (r *REPL) switchSession(ctx context.Context, id string) {
	if !store.ValidSessionID(id) {
		r.printf("invalid session id %q\n", id)
		return
	}
	r.sessionID = id
	r.printf("session: %s\n", r.sessionID)
	r.greet(ctx)
}

func (r *REPL) state(ctx context.Context) {
	state, err := r.conv.State(ctx, r.sessionID)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	dump, err := json.MarshalIndent(map[string]any{
		"data_product": state.DataProduct,
		"policy_pack":  state.PolicyPack,
	}, "", "  ")
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	r.printf("%s\n", dump)
}

func (r *REPL) progress(ctx context.Context) {
	progress, err := r.conv.Progress(ctx, r.sessionID)
	if err != nil {
		r.printf("error: %v\n", err)
		return
	}
	for _, tp := range progress.Topics {
		mark := " "
		if tp.Complete {
			mark = "x"
		}
		current := ""
		if tp.Topic == progress.CurrentTopic {
			current = "  <- current"
		}
		r.printf("[%s] %-16s %d/%d%s\n", mark, tp.Topic, len(tp.Captured), len(tp.Required), current)
		if len(tp.Missing) > 0 {
			r.printf("    missing: %s\n", strings.Join(tp.Missing, ", "))
		}
	}
	r.printf("state: %s\n", progress.State)
}

func (r *REPL) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// RunOnce sends a single message and prints the turn result as indented
// JSON. Used by the non-interactive chat mode.
func RunOnce(ctx context.Context, conv Conversation, sessionID, message string, out io.Writer) error {
	if sessionID == "" {
		sessionID = conv.NewSession()
	}
	result, err := conv.HandleTurn(ctx, sessionID, message)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", data)
	return nil
}
