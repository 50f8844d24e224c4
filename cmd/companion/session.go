package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/yui-companion/backend/internal/client"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
	"github.com/zhouzirui/yui-companion/backend/internal/logging"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

func runSession(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(logLevel, logging.FormatConsole)

	dir := outDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "companion-audio-")
		if err != nil {
			return fmt.Errorf("create audio dir: %w", err)
		}
		dir = tmp
	}
	output, err := NewFileOutput(dir)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "audio segments are written to %s\n", dir)

	controller := companion.NewController(companion.Config{
		Chat:   client.NewChatClient(serverURL, nil),
		Synth:  client.NewSynthClient(serverURL, nil, nil),
		Output: output,
		Notifier: companion.NotifierFunc(func(err error) {
			fmt.Fprintf(stderr, "! %v\n", err)
		}),
		Username:      username,
		PipelineWidth: width,
		Logger:        logger,
	})
	defer controller.Close()

	driver := &printDriver{w: stderr}
	animator := companion.NewAnimator(driver, companion.AnimatorConfig{})
	defer animator.Close()
	detach := animator.Attach(controller.Store())
	defer detach()

	unsubscribe := controller.Store().Subscribe(printUpdates(stdout, stderr))
	defer unsubscribe()

	return repl(ctx, cmd.InOrStdin(), stderr, controller, logger)
}

// printUpdates prints assistant replies to out and dictation status to status.
func printUpdates(out, status io.Writer) func(companion.Update) {
	return func(u companion.Update) {
		switch u.Kind {
		case companion.UpdateMessage:
			if u.Message.Role == chat.RoleAssistant {
				fmt.Fprintf(out, "Yui: %s\n", u.Message.Content)
			}
		case companion.UpdateListening:
			if u.Listening {
				fmt.Fprintln(status, "(listening)")
			} else {
				fmt.Fprintln(status, "(stopped listening)")
			}
		case companion.UpdateInterim:
			if u.Interim != "" {
				fmt.Fprintf(status, "(hearing: %s)\n", u.Interim)
			}
		}
	}
}

// repl feeds stdin lines to the controller until EOF, /quit, or ctx ends.
func repl(ctx context.Context, in io.Reader, errOut io.Writer, controller *companion.Controller, logger zerolog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				return nil
			case "/listen":
				if _, err := controller.ToggleListening(); err != nil {
					logger.Debug().Err(err).Msg("toggle listening failed")
				}
				continue
			}

			err := controller.Submit(ctx, line)
			switch {
			case err == nil, errors.Is(err, companion.ErrEmptyInput):
			case errors.Is(err, companion.ErrBusy):
				fmt.Fprintln(errOut, "(still waiting for the last reply)")
			case errors.Is(err, companion.ErrClosed):
				return nil
			default:
				logger.Debug().Err(err).Msg("submission failed")
			}
		}
	}
}
