/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danielroe/pangrum/joincode"
	"github.com/danielroe/pangrum/protocol"
	"github.com/danielroe/pangrum/puzzlekey"
	"github.com/danielroe/pangrum/session"
	"github.com/spf13/cobra"
)

type joinConfig struct {
	data    string
	puzzle  string
	server  string
	verbose bool
}

func newCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code",
		Short: "Print a fresh join code.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := joincode.Generate()
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), code)

			return err
		},
	}
}

func newJoinCmd() *cobra.Command {
	jc := &joinConfig{}
	v := newViper()

	cmd := &cobra.Command{
		Use:   "join <code>",
		Short: "Sync a local progress file through a room, submitting words read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), jc, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()

	fs.StringVar(&jc.data, "data", "pangrum-local.json", "local progress file (env: PANGRUM_DATA)")
	fs.StringVar(&jc.puzzle, "puzzle", "", "puzzle being played, as lang-YYYY-MM-DD (env: PANGRUM_PUZZLE)")
	fs.StringVar(&jc.server, "server", "ws://localhost:8080/sync", "websocket base URL of the sync server (env: PANGRUM_SERVER)")
	fs.BoolVarP(&jc.verbose, "verbose", "v", false, "display additional output (env: PANGRUM_VERBOSE)")

	bindEnv(v, fs)

	return cmd
}

// runJoin submits each line of in as a found word, then keeps syncing until
// ctx is cancelled.
func runJoin(ctx context.Context, jc *joinConfig, code string, in io.Reader, out io.Writer) error {
	cfg := &Config{verbose: jc.verbose}

	s := session.New(session.Options{
		URL:   jc.server,
		Store: session.OpenOSFileStore(jc.data),
		Notify: func(n session.Notification) {
			fmt.Fprintln(out, n.Message)
		},
		Navigate: func(date, lang string) {
			fmt.Fprintf(out, "Last played on another device: %s-%s\n", lang, date)
		},
		OnState: func(st session.State) {
			logf(cfg, "SYNC: %s", st.Text())
		},
		Logf: func(format string, args ...any) {
			logf(cfg, format, args...)
		},
	})
	defer s.Close()

	if jc.puzzle != "" {
		lang, date, ok := puzzlekey.Parse(jc.puzzle)
		if !ok {
			return fmt.Errorf("invalid puzzle %q (expected lang-YYYY-MM-DD)", jc.puzzle)
		}

		s.SetCurrentPuzzle(protocol.PuzzleRef{PuzzleKey: jc.puzzle, Date: date, Lang: lang})
	}

	code, err := s.Enable(ctx, code)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Joined %s\n", code)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := s.SubmitWord(scanner.Text())
		if errors.Is(err, session.ErrNoPuzzle) {
			return errors.New("--puzzle is required to submit words")
		}
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read words: %w", err)
	}

	<-ctx.Done()

	return nil
}
