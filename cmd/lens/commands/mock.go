package commands

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaman2009/lang-lens/internal/config"
	"github.com/shaman2009/lang-lens/internal/mockserver"
)

var MockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a local mock Execution Service",
	Long: `Runs a local stand-in for the Execution Service with canned assistant
replies, useful for trying lens without a real agent runtime.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		store, err := mockserver.NewStore(cfg.MockDatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		defer store.Close()

		e := mockserver.NewServer(store).NewEcho()
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MockPort)
			if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start mock server: %v", err)
			}
		}()
		log.Printf("Mock Execution Service started on port %d", cfg.MockPort)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down mock server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	},
}
