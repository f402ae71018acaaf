package main

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"talkback/internal/bootstrap"
	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/mcp"
	"talkback/internal/ports"
	"talkback/internal/provider"
	"talkback/internal/quickaction"
	"talkback/internal/usecase"
)

// servicesFunc opens the runtime graph for one command invocation.
type servicesFunc func(c *cli.Context, events ports.EventSink) (*bootstrap.Services, error)

// settlePoll is how often capture checks whether the pipeline has finished.
var settlePoll = 50 * time.Millisecond

// newCLIApp creates the CLI application with all commands.
func newCLIApp(open servicesFunc, stdin io.Reader) *cli.App {
	app := &cli.App{
		Name:    "talkback",
		Usage:   "Capture speech, transcribe it and converse with an AI provider",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to config.yaml (default $TALKBACK_CONFIG or ~/.config/talkback/config.yaml)"},
		},
		Commands: []*cli.Command{
			captureCmd(open, stdin),
			conversationsCmd(open),
			quickActionsCmd(open),
			providerCmd(),
			vadCmd(open),
			devicesCmd(open),
			promptCmd(open),
			mcpCmd(open),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	// Template variables may contain commas.
	app.DisableSliceFlagSeparator = true
	return app
}

type captureResult struct {
	SessionID  string              `json:"sessionId,omitempty"`
	State      domain.CaptureState `json:"state"`
	Transcript string              `json:"transcript,omitempty"`
	Response   string              `json:"response,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// captureCmd runs one headless capture session.
func captureCmd(open servicesFunc, stdin io.Reader) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture one segment, transcribe it and print the turn (Enter stops)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Capture mode for this and future sessions: vad|continuous"},
		},
		Action: func(c *cli.Context) error {
			services, err := open(c, newLineSink(c.App.ErrWriter))
			if err != nil {
				return outputError(err)
			}
			defer services.Close()
			services.ServeMetrics(c.Context)

			controller := services.Controller
			if mode := c.String("mode"); mode != "" {
				vadCfg := controller.VadConfiguration()
				vadCfg.Mode = domain.CaptureMode(mode)
				if err := controller.UpdateVadConfiguration(c.Context, vadCfg); err != nil {
					return outputError(err)
				}
			}

			if err := controller.StartCapture(c.Context); err != nil {
				return outputError(err)
			}
			// The session is cleared once the pipeline settles.
			var sessionID string
			if session, ok := controller.Session(); ok {
				sessionID = session.ID
			}
			fmt.Fprintln(c.App.ErrWriter, "capturing; press Enter to stop")

			stop := make(chan struct{}, 1)
			go func() {
				if _, err := bufio.NewReader(stdin).ReadString('\n'); err == nil {
					stop <- struct{}{}
				}
			}()

			status, err := awaitSettled(c.Context, controller, stop)
			if err != nil {
				return outputError(apperrors.NewInternal(err))
			}

			result := captureResult{
				SessionID:  sessionID,
				State:      status.State,
				Transcript: status.LastTranscription,
				Response:   status.LastAIResponse,
				Error:      status.Error,
			}
			return outputJSON(c.App.Writer, result)
		},
	}
}

// awaitSettled blocks until the controller leaves capture and processing.
// A signal on stop finalizes a session that is still capturing.
func awaitSettled(ctx context.Context, controller *usecase.CaptureController, stop <-chan struct{}) (domain.Status, error) {
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()

	for {
		status := controller.Status()
		switch status.State {
		case domain.CaptureStateIdle, domain.CaptureStateError, domain.CaptureStateSetupRequired:
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-stop:
			stop = nil
			if status.State == domain.CaptureStateCapturing {
				if err := controller.StopCapture(ctx); err != nil && !apperrors.Is(err, domain.ErrorCodeNoSession) {
					return status, err
				}
			}
		case <-ticker.C:
		}
	}
}

// conversationsCmd groups conversation history commands.
func conversationsCmd(open servicesFunc) *cli.Command {
	return &cli.Command{
		Name:  "conversations",
		Usage: "Inspect and manage conversation history",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List conversations, oldest first",
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					activeID := services.Conversations.ActiveID()
					conversations := services.Conversations.List()
					summaries := make([]conversationSummary, 0, len(conversations))
					for _, conv := range conversations {
						summaries = append(summaries, conversationSummary{
							ID:        conv.ID,
							CreatedAt: conv.CreatedAt,
							TurnCount: len(conv.Turns),
							Active:    conv.ID == activeID,
						})
					}
					return outputJSON(c.App.Writer, summaries)
				},
			},
			{
				Name:      "show",
				Usage:     "Print one conversation with its turns (defaults to the active one)",
				ArgsUsage: "[id]",
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					id := c.Args().First()
					if id == "" {
						id = services.Conversations.ActiveID()
					}
					conv, err := services.Conversations.Get(id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, conv)
				},
			},
			{
				Name:  "new",
				Usage: "Start a new empty conversation and make it active",
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					conv, err := services.Conversations.StartNewConversation(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, conv)
				},
			},
			{
				Name:      "select",
				Usage:     "Open a conversation for browsing; new turns still go to the active one",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(apperrors.NewValidation("conversation id is required"))
					}
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					conv, err := services.Conversations.Select(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, conv)
				},
			},
		},
	}
}

type conversationSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	TurnCount int       `json:"turnCount"`
	Active    bool      `json:"active"`
}

// quickActionsCmd groups quick action registry commands.
func quickActionsCmd(open servicesFunc) *cli.Command {
	return &cli.Command{
		Name:  "quick-actions",
		Usage: "Manage and run saved prompts",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List saved quick actions",
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()
					return outputJSON(c.App.Writer, services.QuickActions.List())
				},
			},
			{
				Name:  "add",
				Usage: "Save a new quick action",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Required: true, Usage: "Unique label (case-sensitive)"},
					&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Required: true, Usage: "Prompt template; may use {{transcript}} and {{context}}"},
				},
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					action, err := services.QuickActions.Add(c.Context, c.String("label"), c.String("template"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, action)
				},
			},
			{
				Name:      "remove",
				Usage:     "Delete a quick action",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(apperrors.NewValidation("quick action id is required"))
					}
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					id := c.Args().First()
					if err := services.QuickActions.Remove(c.Context, id); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{"id": id, "removed": true})
				},
			},
			{
				Name:  "run",
				Usage: "Send a quick action to the AI provider without capturing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Quick action id"},
					&cli.StringFlag{Name: "transcript", Usage: "Text substituted for {{transcript}}"},
				},
				Action: func(c *cli.Context) error {
					id := c.String("id")
					if id == "" {
						return outputError(apperrors.NewValidation("quick action id is required (--id)"))
					}
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					in := quickaction.InputFrom(services.Controller, c.String("transcript"))
					turn, err := services.QuickActions.Dispatch(c.Context, id, in)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, turn)
				},
			},
		},
	}
}

// providerCmd groups provider template tooling. It needs no runtime graph.
func providerCmd() *cli.Command {
	return &cli.Command{
		Name:  "provider",
		Usage: "Work with curl provider templates",
		Subcommands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Parse a template and print the resulting request descriptor",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: string(provider.KindTranscription), Usage: "Template kind: stt|ai"},
					&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Required: true, Usage: "curl command line"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Value: "custom", Usage: "Provider name used in errors"},
					&cli.StringSliceFlag{Name: "var", Usage: "Template variable as NAME=value (repeatable)"},
				},
				Action: func(c *cli.Context) error {
					vars, err := parseVars(c.StringSlice("var"))
					if err != nil {
						return outputError(err)
					}
					desc, err := provider.Parse(provider.Kind(c.String("kind")), c.String("name"), c.String("template"), vars)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, describe(desc))
				},
			},
		},
	}
}

// descriptorView is the printable form of a descriptor. Header and form
// values are omitted since they usually carry credentials.
type descriptorView struct {
	Kind         provider.Kind `json:"kind"`
	Name         string        `json:"name"`
	Method       string        `json:"method"`
	URL          string        `json:"url"`
	Headers      []string      `json:"headers,omitempty"`
	Body         string        `json:"body,omitempty"`
	Form         []string      `json:"form,omitempty"`
	ResponsePath string        `json:"responsePath"`
}

func describe(desc provider.Descriptor) descriptorView {
	view := descriptorView{
		Kind:         desc.Kind,
		Name:         desc.Name,
		Method:       desc.Method,
		URL:          desc.URL,
		Body:         desc.Body,
		ResponsePath: desc.ResponsePath,
	}
	for _, header := range desc.Headers {
		view.Headers = append(view.Headers, header.Name)
	}
	for _, field := range desc.Form {
		name := field.Name
		if field.File {
			name += " (file)"
		}
		view.Form = append(view.Form, name)
	}
	return view
}

// vadCmd reads or updates the persisted VAD configuration.
func vadCmd(open servicesFunc) *cli.Command {
	return &cli.Command{
		Name:  "vad",
		Usage: "Show or change voice activity detection settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the configuration the next session will use",
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()
					return outputJSON(c.App.Writer, services.Controller.VadConfiguration())
				},
			},
			{
				Name:  "set",
				Usage: "Change and persist individual settings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Usage: "vad|continuous"},
					&cli.Float64Flag{Name: "threshold-db", Usage: "Silence threshold in dBFS"},
					&cli.IntFlag{Name: "silence-ms", Usage: "Silence window in milliseconds"},
					&cli.IntFlag{Name: "max-secs", Usage: "Hard recording ceiling in seconds"},
				},
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					vadCfg := services.Controller.VadConfiguration()
					if c.IsSet("mode") {
						vadCfg.Mode = domain.CaptureMode(c.String("mode"))
					}
					if c.IsSet("threshold-db") {
						vadCfg.SilenceThresholdDB = c.Float64("threshold-db")
					}
					if c.IsSet("silence-ms") {
						vadCfg.SilenceDurationMs = c.Int("silence-ms")
					}
					if c.IsSet("max-secs") {
						vadCfg.MaxRecordingDurationSecs = c.Int("max-secs")
					}
					if err := services.Controller.UpdateVadConfiguration(c.Context, vadCfg); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, services.Controller.VadConfiguration())
				},
			},
		},
	}
}

// devicesCmd lists capture sources and picks the one future sessions open.
func devicesCmd(open servicesFunc) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List and select audio capture sources",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the sources the recorder can capture from",
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					devices, err := services.ListDevices(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, devices)
				},
			},
			{
				Name:      "select",
				Usage:     "Capture from this source starting with the next session",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(apperrors.NewValidation("device id is required"))
					}
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					if err := services.Controller.SelectInputDevice(c.Context, c.Args().First()); err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{"device": services.Controller.InputDevice()})
				},
			},
		},
	}
}

// promptCmd drafts system prompts with the configured AI provider.
func promptCmd(open servicesFunc) *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Work with the system prompt",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Ask the AI provider to write a system prompt from a description",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Required: true, Usage: "What the assistant should be like"},
					&cli.BoolFlag{Name: "save", Usage: "Store the draft as the system prompt"},
				},
				Action: func(c *cli.Context) error {
					services, err := open(c, nil)
					if err != nil {
						return outputError(err)
					}
					defer services.Close()

					generated, err := services.Responder.GenerateSystemPrompt(c.Context, c.String("description"))
					if err != nil {
						return outputError(err)
					}
					if c.Bool("save") {
						if err := services.Controller.SetSystemPrompt(c.Context, generated); err != nil {
							return outputError(err)
						}
					}
					return outputJSON(c.App.Writer, map[string]any{"systemPrompt": generated, "saved": c.Bool("save")})
				},
			},
		},
	}
}

// mcpCmd serves conversation history over stdio.
func mcpCmd(open servicesFunc) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve conversation history to MCP clients over stdio",
		Action: func(c *cli.Context) error {
			services, err := open(c, nil)
			if err != nil {
				return outputError(err)
			}
			defer services.Close()
			return mcp.Run(services.Store, Version)
		},
	}
}

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats an error as "[CODE] message" with exit status 1.
func outputError(err error) error {
	var appErr *apperrors.Error
	if stderrors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(fmt.Sprintf("[%s] %s", domain.ErrorCodeInternal, err.Error()), 1)
}

// parseVars splits NAME=value pairs.
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, apperrors.NewValidationf("variable %q must be NAME=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}
