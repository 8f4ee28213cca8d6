package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/studycompanion/studycompanion/internal/config"
	"github.com/studycompanion/studycompanion/internal/provider"
	"github.com/studycompanion/studycompanion/internal/service"
)

func summarizeCmd(a *app) *cobra.Command {
	var (
		maxLength int
		style     string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize text read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), int64(a.cfg.MaxTextLength)*4+1))
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			client, err := newToolProvider(a)
			if err != nil {
				return err
			}
			summarizer := service.NewSummarizer(client, nil, nil, service.SummarizerConfig{
				MaxTextLength: a.cfg.MaxTextLength,
				Concurrency:   a.cfg.SummaryConcurrency,
			}, a.logger, nil)

			res, err := summarizer.Summarize(cmd.Context(), service.SummarizeInput{
				Text:      string(text),
				MaxLength: maxLength,
				Style:     style,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(out, res.Summary)
			a.logger.Debug("summary stats",
				"original_length", res.OriginalLength,
				"summary_length", res.SummaryLength,
				"chunks", res.ChunkCount,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxLength, "max-length", 0, "target summary length in words (default 150)")
	cmd.Flags().StringVar(&style, "style", "", "concise, detailed or bullet_points")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newToolProvider(a *app) (provider.Client, error) {
	if a.cfg.Provider == config.ProviderMock {
		return provider.NewMock(), nil
	}
	return provider.NewOpenAI(provider.OpenAIConfig{
		BaseURL:    a.cfg.OpenAIBaseURL,
		APIKey:     a.cfg.OpenAIAPIKey,
		Model:      a.cfg.OpenAIModel,
		Timeout:    a.cfg.OpenAITimeout,
		MaxRetries: a.cfg.OpenAIMaxRetries,
	}, a.logger)
}
