package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/service/relay"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store a few demo messages in the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Store.Backend == config.StoreMemory {
			return fmt.Errorf("seed needs a persistent store (store.backend=file|sql)")
		}

		// 2) open store
		ctx := context.Background()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		log.Println(">> Seeding demo messages...")

		ids, err := relay.New(store, store, nil, nil).Upload(ctx, demoMessages(time.Now()))
		if err != nil {
			return fmt.Errorf("seed messages: %w", err)
		}

		log.Printf(">> Seed completed: %d messages", len(ids))
		return nil
	},
}

// demoMessages returns deterministic demo traffic relative to now.
func demoMessages(now time.Time) []relay.UploadInput {
	at := func(ago time.Duration) string {
		return fmt.Sprint(now.Add(-ago).UnixMilli())
	}
	return []relay.UploadInput{
		{Sender: "+15550100", Body: "Your verification code is 482913", OccurredAtMs: at(3 * time.Hour), Kind: "inbound"},
		{Sender: "BANK", Body: "Card ending 4242 charged 12.50 USD", OccurredAtMs: at(2 * time.Hour), Kind: "inbound"},
		{Sender: "+15550123", Body: "Running 10 min late", OccurredAtMs: at(45 * time.Minute), Kind: "inbound"},
		{Sender: "+15550123", Body: "No worries, see you soon", OccurredAtMs: at(40 * time.Minute), Kind: "sent"},
		{Sender: "+4915112345678", Body: "Paket wird heute zugestellt", OccurredAtMs: at(5 * time.Minute), Kind: "inbound"},
	}
}
