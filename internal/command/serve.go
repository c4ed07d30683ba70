package command

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/sparringhq/sparring/client"
	"github.com/sparringhq/sparring/internal/engine"
)

// NewServeCmd creates the serve command: run the sync engine and the
// local browser-UI bridge.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat client bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
				return err
			}

			database, err := openClientDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			apiClient, err := newAPIClient(cfg, database)
			if err != nil {
				return err
			}

			token, err := database.GetCredential(cfg.ServerURL)
			if err != nil {
				return err
			}

			conns := engine.NewManager(cfg.WSBase(), token)
			eng := engine.New(apiClient, conns, database)
			bridge := client.NewBridge(eng, conns, database)

			router := mux.NewRouter()
			router.HandleFunc("/ws", bridge.HandleWebSocket)
			router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir("web"))))
			router.HandleFunc("/", bridge.HandleIndex)

			httpServer := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: router,
			}

			go func() {
				if err := eng.Start(context.Background()); err != nil {
					log.Printf("engine start: %v", err)
				}
			}()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh

				log.Println("Shutting down...")
				eng.Close()
				httpServer.Shutdown(context.Background())
			}()

			log.Printf("Sparring client running at http://%s", cfg.ListenAddr)
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	return cmd
}
