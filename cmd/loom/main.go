// Package main provides the loom CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/agent"
	"github.com/loomlabs/loom/compression"
	"github.com/loomlabs/loom/config"
	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/storage"
	"github.com/loomlabs/loom/tools"
)

var (
	// Global flags
	provider string
	maxIter  int
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "LLM agents with a turn-taking loop and bounded context",
		Long: `Run an LLM tool-calling loop with recursion control and
context compression: the loop calls the model, dispatches requested
tools, and feeds results back until the task completes or a
termination heuristic fires.`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "openai", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 0, "Maximum loop iterations (0 = use config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show the full event stream")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sessionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Execute a task with the turn-taking loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], sessionID, dbPath)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for persisted history")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from LOOM_DB_PATH)")
	return cmd
}

func run(ctx context.Context, task, sessionID, dbPath string) error {
	settings, err := config.New(provider)
	if err != nil {
		return err
	}
	if maxIter > 0 {
		settings.Agent.MaxIterations = maxIter
	}
	if dbPath == "" {
		dbPath = settings.Storage.DatabasePath
	}

	llmProvider, err := buildProvider(settings)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewCalculatorTool()); err != nil {
		return err
	}

	compressor := compression.NewManager(llmProvider).
		WithThreshold(settings.Context.CompressionThreshold).
		WithMaxRetries(settings.Context.CompressionRetries).
		WithWindowSize(settings.Context.FallbackWindowSize)

	monitor := agent.NewMonitor(settings.Agent.MaxIterations).
		WithDuplicateThreshold(settings.Recursion.DuplicateThreshold).
		WithLoopDetectionWindow(settings.Recursion.LoopDetectionWindow).
		WithErrorThreshold(settings.Recursion.ErrorThreshold)

	executor, err := agent.NewExecutor(llmProvider, agent.Config{
		MaxIterations:    settings.Agent.MaxIterations,
		MaxContextTokens: settings.Context.MaxContextTokens,
		RecursionControl: settings.Agent.RecursionControl,
	})
	if err != nil {
		return err
	}
	executor.WithTools(registry).WithCompressor(compressor).WithMonitor(monitor)

	var store *storage.SqliteStorage
	if dbPath != "" {
		store, err = storage.OpenSqlite(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	messages := []llm.Message{llm.UserMessage(task)}
	if store != nil && sessionID != "" {
		prior, err := store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		messages = append(prior, messages...)
	}

	execCtx := agent.NewExecutionContext("")
	finalContent := ""
	var runErr error

	for event := range executor.TT(ctx, execCtx, messages) {
		switch event.Type {
		case agent.EventLLMComplete:
			if verbose {
				fmt.Printf("[llm] %s\n", event.Content)
			}
		case agent.EventToolResult:
			if verbose {
				fmt.Printf("[tool] %s -> %s\n", event.ToolResult.ToolName, event.ToolResult.Content)
			}
		case agent.EventToolError:
			fmt.Fprintf(os.Stderr, "[tool error] %s: %s\n", event.ToolResult.ToolName, event.ToolResult.Content)
		case agent.EventCompressionApplied:
			if verbose {
				fmt.Printf("[compression] %v -> %v tokens\n",
					event.Data["original_tokens"], event.Data["compressed_tokens"])
			}
			if store != nil && sessionID != "" {
				if meta, ok := event.Data["metadata"].(compression.Metadata); ok {
					if err := store.RecordCompression(ctx, sessionID, meta); err != nil {
						fmt.Fprintf(os.Stderr, "Warning: failed to record compression: %v\n", err)
					}
				}
			}
		case agent.EventRecursionTerminated, agent.EventMaxIterationsReached:
			fmt.Fprintln(os.Stderr, event.Content)
			if partial, ok := event.Data["partial_content"].(string); ok && partial != "" {
				finalContent = partial
			}
		case agent.EventAgentFinish:
			finalContent = event.Content
		case agent.EventError:
			runErr = event.Err
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Println(finalContent)

	if store != nil && sessionID != "" {
		messages = append(messages, llm.AssistantMessage(finalContent))
		if err := store.Save(ctx, sessionID, messages); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}
	return nil
}

func sessionsCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = os.Getenv("LOOM_DB_PATH")
			}
			if dbPath == "" {
				return fmt.Errorf("no database configured: pass --db or set LOOM_DB_PATH")
			}
			store, err := storage.OpenSqlite(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range sessions {
				fmt.Println(id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	return cmd
}

func buildProvider(settings config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}
	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		FromEnv()
}
