package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/szaher/dealerline/internal/callcenter"
	"github.com/szaher/dealerline/internal/events"
	"github.com/szaher/dealerline/internal/session"
)

const callHelp = `Type what the customer says. Commands:
  /takeover [reason]  hand the call to a human agent
  /agent <text>       speak as the human agent
  /status             show the call state
  /end [outcome]      end the call (also on Ctrl-D)
`

// lineReader reads one line of input at a time.
type lineReader interface {
	ReadLine() (string, error)
}

// rawTerminal reads lines with terminal editing, entering raw mode only
// while a line is being typed.
type rawTerminal struct {
	fd int
	t  *term.Terminal
}

func (r *rawTerminal) ReadLine() (string, error) {
	oldState, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", err
	}
	if width, height, err := term.GetSize(r.fd); err == nil {
		_ = r.t.SetSize(width, height)
	}
	line, err := r.t.ReadLine()
	if restoreErr := term.Restore(r.fd, oldState); restoreErr != nil && err == nil {
		err = restoreErr
	}
	return line, err
}

type scannerReader struct {
	s *bufio.Scanner
}

func (r *scannerReader) ReadLine() (string, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.s.Text(), nil
}

func newCallCmd() *cobra.Command {
	var (
		phone     string
		name      string
		callType  string
		direction string
		eventsOut string
		logFile   string
	)

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place a demo call with the AI agent in the terminal",
		Long: `Start a call and type the customer's side of the conversation. The call
runs through the same agent, CRM and storage as the server; ending it writes
the transcript and call log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()
				logOut = f
			}
			logger, err := newLogger(cfg, logOut)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			collector := &events.CollectorEmitter{}
			a, err := newApp(ctx, cfg, logger, collector)
			if err != nil {
				return err
			}
			defer a.Close()

			var (
				in  lineReader
				out io.Writer = cmd.OutOrStdout()
			)
			if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
				t := term.NewTerminal(os.Stdin, "Customer> ")
				in, out = &rawTerminal{fd: fd, t: t}, t
			} else {
				in = &scannerReader{s: bufio.NewScanner(os.Stdin)}
			}

			s, err := a.center.StartSession(phone, session.Direction(direction), callType, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Call %s started with %s (%s)\n%s\n", s.ID, s.Phone, s.CustomerName, callHelp)
			fmt.Fprintf(out, "Priya: %s\n", s.Transcript[0].Content)

			outcome, err := runCall(cmd, a.center, s.ID, in, out)
			if err != nil {
				return err
			}

			rec, err := a.center.EndSession(ctx, s.ID, outcome)
			if err != nil {
				return err
			}
			if rec != nil {
				fmt.Fprintf(out, "\nCall ended: %s, %d seconds, handled by %s\n", rec.Outcome, rec.DurationSeconds, rec.HandledBy)
			}

			if eventsOut != "" {
				if err := events.ExportLog(collector.Events(), eventsOut); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %d events to %s\n", len(collector.Events()), eventsOut)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "+91 90000 00001", "Caller phone number")
	cmd.Flags().StringVar(&name, "name", "", "Caller name")
	cmd.Flags().StringVar(&callType, "type", "", "Call type (inquiry, service, complaint, ...)")
	cmd.Flags().StringVar(&direction, "direction", "inbound", "Call direction (inbound or outbound)")
	cmd.Flags().StringVar(&eventsOut, "events-out", "", "Write the call's events as JSON lines to this file")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write service logs to this file")

	return cmd
}

// runCall reads input until the call ends and returns the outcome to record.
func runCall(cmd *cobra.Command, center *callcenter.Center, id string, in lineReader, out io.Writer) (string, error) {
	ctx := cmd.Context()
	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			verb, rest, _ := strings.Cut(line, " ")
			rest = strings.TrimSpace(rest)
			switch verb {
			case "/end":
				return rest, nil
			case "/takeover":
				if center.RequestTakeover(id, rest) {
					s := center.GetSession(id)
					fmt.Fprintf(out, "Priya: %s\n[call handed to a human agent]\n", s.Transcript[len(s.Transcript)-1].Content)
				}
			case "/agent":
				if _, err := center.PostHumanMessage(id, rest); err != nil {
					fmt.Fprintf(out, "[%v]\n", err)
				}
			case "/status":
				s := center.GetSession(id)
				fmt.Fprintf(out, "[status=%s handled_by=%s confidence=%.2f sentiment=%.2f actions=%s]\n",
					s.Status, s.HandledBy, s.Confidence, s.Sentiment, strings.Join(s.Context.FunctionsCalled, ","))
			default:
				fmt.Fprint(out, callHelp)
			}
			continue
		}

		turn, err := center.SubmitUtterance(ctx, id, line)
		switch {
		case errors.Is(err, callcenter.ErrTakeoverActive):
			fmt.Fprintln(out, "[a human agent is handling this call, use /agent to reply]")
			continue
		case err != nil:
			return "", err
		}
		fmt.Fprintf(out, "Priya: %s\n", turn.Reply)
		for _, inv := range turn.Actions {
			fmt.Fprintf(out, "  [%s -> %s]\n", inv.Name, inv.Result.Message())
		}
		if turn.Degraded {
			fmt.Fprintf(out, "  [degraded: %s]\n", turn.ErrorText())
		}
		if turn.TakeoverRequested {
			fmt.Fprintf(out, "  [takeover: %s]\n", turn.TakeoverReason)
		}
	}
}
