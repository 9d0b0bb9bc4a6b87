package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inferd/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// backend abstracts the two wire protocols so every subcommand works
// against either a REST or an RPC server.
type backend interface {
	Health(ctx context.Context) (*types.HealthResponse, error)
	Metrics(ctx context.Context) (*types.MetricsResponse, error)
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error)
	GenerateStream(ctx context.Context, req types.GenerateRequest, onChunk func(types.StreamChunk)) error
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error)
	Classify(ctx context.Context, req types.ClassifyRequest) (*types.ClassifyResponse, error)
	Embed(ctx context.Context, req types.EmbeddingsRequest) (*types.EmbeddingsResponse, error)
	Close() error
}

type rootOpts struct {
	addr     string
	protocol string
	apiKey   string
	timeout  time.Duration
}

func (o rootOpts) dial() (backend, error) {
	switch o.protocol {
	case "rest":
		return newRESTBackend(o.addr, o.apiKey), nil
	case "rpc":
		return newRPCBackend(o.addr, o.apiKey)
	default:
		return nil, fmt.Errorf("unknown protocol %q (want rest or rpc)", o.protocol)
	}
}

func (o rootOpts) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

func newRootCmd() *cobra.Command {
	var o rootOpts

	root := &cobra.Command{
		Use:           "inferdctl",
		Short:         "Query and exercise a running inferd server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&o.addr, "addr", "a", "127.0.0.1:8080", "server address (host:port)")
	pf.StringVar(&o.protocol, "protocol", "rest", "wire protocol: rest or rpc")
	pf.StringVarP(&o.apiKey, "api-key", "k", "", "API key sent with requests")
	pf.DurationVar(&o.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		newHealthCmd(&o),
		newMetricsCmd(&o),
		newGenerateCmd(&o),
		newChatCmd(&o),
		newClassifyCmd(&o),
		newEmbedCmd(&o),
	)
	return root
}

func withBackend(o *rootOpts, fn func(ctx context.Context, b backend) error) error {
	b, err := o.dial()
	if err != nil {
		return err
	}
	defer b.Close()
	ctx, cancel := o.ctx()
	defer cancel()
	return fn(ctx, b)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHealthCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health and model identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(o, func(ctx context.Context, b backend) error {
				h, err := b.Health(ctx)
				if err != nil {
					return err
				}
				return printJSON(h)
			})
		},
	}
}

func newMetricsCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show request counters and latency percentiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(o, func(ctx context.Context, b backend) error {
				m, err := b.Metrics(ctx)
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
}

func newGenerateCmd(o *rootOpts) *cobra.Command {
	var maxTokens int
	var temperature float64
	var stream bool

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Run a text completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.GenerateRequest{
				Prompt:    args[0],
				MaxTokens: maxTokens,
				Stream:    stream,
			}
			// Only an explicit flag reaches the wire; 0 means greedy.
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			return withBackend(o, func(ctx context.Context, b backend) error {
				if stream {
					err := b.GenerateStream(ctx, req, func(c types.StreamChunk) {
						fmt.Print(c.Text)
					})
					fmt.Println()
					return err
				}
				resp, err := b.Generate(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 128, "maximum tokens to generate")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream chunks as they arrive")
	return cmd
}

func newChatCmd(o *rootOpts) *cobra.Command {
	var maxTokens int
	var system string

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Run a single-turn chat completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msgs []types.Message
			if system != "" {
				msgs = append(msgs, types.Message{Role: "system", Content: system})
			}
			msgs = append(msgs, types.Message{Role: "user", Content: args[0]})
			req := types.ChatRequest{Messages: msgs, MaxTokens: maxTokens}
			return withBackend(o, func(ctx context.Context, b backend) error {
				resp, err := b.Chat(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 128, "maximum tokens to generate")
	cmd.Flags().StringVar(&system, "system", "", "system prompt prepended to the conversation")
	return cmd
}

func newClassifyCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify a piece of text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.ClassifyRequest{Text: strings.Join(args, " ")}
			return withBackend(o, func(ctx context.Context, b backend) error {
				resp, err := b.Classify(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
}

func newEmbedCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <text>...",
		Short: "Compute embeddings for one or more texts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.EmbeddingsRequest{Inputs: args}
			return withBackend(o, func(ctx context.Context, b backend) error {
				resp, err := b.Embed(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
}
