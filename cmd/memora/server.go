package memora

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/memora-ai/memora/pkg/config"
	"github.com/memora-ai/memora/pkg/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Memora HTTP server",
	Long: `Start the Memora HTTP server providing REST access to the memory engine.

The server exposes endpoints for ingesting facts, searching, thinking, and
health checks. Configuration comes from config files, environment variables,
or flags.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "localhost", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
	serverCmd.Flags().String("mode", "release", "Server mode (debug, release, test)")

	serverCmd.Flags().String("db-driver", "memory", "Store driver (memory, badger, neo4j)")
	serverCmd.Flags().String("db-uri", "./memora_db", "Store path or bolt URI")
	serverCmd.Flags().String("db-username", "", "Store username (neo4j only)")
	serverCmd.Flags().String("db-password", "", "Store password (neo4j only)")

	serverCmd.Flags().String("embedding-api-key", "", "Embedding API key")
	serverCmd.Flags().String("embedding-base-url", "", "Embedding base URL")
	serverCmd.Flags().String("llm-api-key", "", "LLM API key")
	serverCmd.Flags().String("llm-base-url", "", "LLM base URL")
	serverCmd.Flags().String("reranker", "local", "Cross-encoder provider (local, openai)")

	viper.BindPFlag("server.host", serverCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serverCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.mode", serverCmd.Flags().Lookup("mode"))
	viper.BindPFlag("database.driver", serverCmd.Flags().Lookup("db-driver"))
	viper.BindPFlag("database.uri", serverCmd.Flags().Lookup("db-uri"))
	viper.BindPFlag("database.username", serverCmd.Flags().Lookup("db-username"))
	viper.BindPFlag("database.password", serverCmd.Flags().Lookup("db-password"))
	viper.BindPFlag("embedding.api_key", serverCmd.Flags().Lookup("embedding-api-key"))
	viper.BindPFlag("embedding.base_url", serverCmd.Flags().Lookup("embedding-base-url"))
	viper.BindPFlag("llm.api_key", serverCmd.Flags().Lookup("llm-api-key"))
	viper.BindPFlag("llm.base_url", serverCmd.Flags().Lookup("llm-base-url"))
	viper.BindPFlag("reranker.provider", serverCmd.Flags().Lookup("reranker"))
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	mem, err := buildMemory(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer mem.Close()

	srv := server.New(cfg, mem, log)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	}
}
