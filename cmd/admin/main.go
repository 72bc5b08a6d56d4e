package main

import (
	"accord/backend/internal/aibridge"
	"accord/backend/internal/analysis"
	"accord/backend/internal/api/handler"
	"accord/backend/internal/config"
	"accord/backend/internal/models"
	"accord/backend/internal/storage"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var cfg *config.Config

func openStorage() (*storage.Service, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return storage.NewStorageService(db), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Maintenance commands for the Accord relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, _, err = config.Load()
		// Only the token command needs the secret.
		if err != nil && cmd.Name() == "token" {
			return err
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		if err := s.Migrate(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations complete.")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <chat_id>",
	Short: "Print recent messages of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		rawOrder, _ := cmd.Flags().GetString("order")
		order, ok := models.ParseHistoryOrder(rawOrder)
		if !ok {
			return fmt.Errorf("invalid order %q", rawOrder)
		}
		if limit <= 0 || limit > config.MaxHistoryPageSize {
			return fmt.Errorf("limit must be between 1 and %d", config.MaxHistoryPageSize)
		}

		s, err := openStorage()
		if err != nil {
			return err
		}
		for msg, err := range s.FetchHistory(cmd.Context(), args[0], limit, order) {
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s %s: %s\n",
				msg.ID, msg.Timestamp.Format(time.RFC3339), msg.SenderName, msg.Text)
		}
		return nil
	},
}

var analysisCmd = &cobra.Command{
	Use:   "analysis <chat_id>",
	Short: "Print the stored analysis of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		result, err := s.GetLatestAnalysis(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("chat %s has not been analyzed", args[0])
		}
		return printJSON(cmd, result)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <chat_id>",
	Short: "Run an analysis of a chat now and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		ai := aibridge.New(aibridge.Config{URL: cfg.AI.URL, Timeout: cfg.AI.Timeout})
		result, err := analysis.NewService(s, ai, cfg.Relay).Analyze(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user_id> <display_name>",
	Short: "Issue an identity token for local testing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		tok, err := handler.IssueToken([]byte(cfg.JWTSecret), models.Identity{UserID: args[0], DisplayName: args[1]}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", config.DefaultHistoryPageSize, "number of messages")
	historyCmd.Flags().String("order", "asc", "asc or desc")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(migrateCmd, historyCmd, analysisCmd, analyzeCmd, tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
