// Command seed-cache fills a local cache database with dummy private rooms,
// so the chat list and room views have something to show before any live
// sync.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/logger"
	"github.com/clippy-oss/homie/chat-sync/internal/repository"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
)

var sampleTexts = []string{
	"Hey! How are you doing?",
	"Can we meet tomorrow?",
	"Thanks for your help!",
	"See you later!",
	"That sounds great!",
	"Let me know when you're free",
	"Perfect! I'll be there",
	"Did you see the latest news?",
	"Have a great day!",
	"What time works for you?",
	"I'll send it over shortly",
	"Looking forward to it!",
	"Let's catch up soon",
}

var peerNames = map[string]string{
	"alice":   "Alice Johnson",
	"bob":     "Bob Smith",
	"charlie": "Charlie Brown",
	"diana":   "Diana Prince",
	"eve":     "Eve Wilson",
}

func main() {
	dbPath := flag.String("db", "dummy_cache.db", "Cache database to seed")
	userID := flag.String("user", "me", "Identifier of the user owning the cache")
	secret := flag.String("secret", os.Getenv("CHAT_SECRET"), "Shared message encryption secret")
	peers := flag.String("peers", "alice,bob,charlie,diana,eve", "Comma-separated peer identifiers")
	perRoom := flag.Int("messages", 30, "Messages per room")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	logger.Init("warn")
	log := logger.Module("seed")

	if *secret == "" {
		log.Fatal().Msg("an encryption secret is required (-secret or CHAT_SECRET)")
	}
	if !domain.ValidIdentifier(*userID) {
		log.Fatal().Str("user", *userID).Msg("invalid user identifier")
	}

	fmt.Printf("Using database at: %s\n", *dbPath)

	db, err := initDatabase(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	cipher, err := encryption.NewAESGCM(*secret, encryption.DefaultKDFParams)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption")
	}

	store := service.NewMessageStore(
		repository.NewMessageCacheRepository(db),
		repository.NewPreviewRepository(db),
		cipher,
		0,
		log,
	)

	self := domain.Identity{UserID: *userID, Name: "Me"}
	rng := rand.New(rand.NewSource(*seed))
	ctx := context.Background()

	for _, peerID := range strings.Split(*peers, ",") {
		peerID = strings.TrimSpace(peerID)
		if !domain.ValidIdentifier(peerID) || peerID == self.UserID {
			fmt.Printf("Skipping invalid peer %q\n", peerID)
			continue
		}
		peer := &domain.User{ID: peerID, Name: peerNames[peerID]}
		if peer.Name == "" {
			peer.Name = peerID
		}

		msgs, err := dummyRoom(rng, cipher, self, peer, *perRoom)
		if err != nil {
			log.Fatal().Err(err).Str("peer", peerID).Msg("Failed to build messages")
		}

		roomID := domain.PrivateRoomID(self.UserID, peerID)
		if err := store.ApplySnapshot(ctx, roomID, msgs); err != nil {
			log.Fatal().Err(err).Str("room", roomID.String()).Msg("Failed to seed room")
		}

		last := msgs[len(msgs)-1]
		fmt.Printf("Created room %s with %s: %d messages (last %s from %s)\n",
			roomID, peer.DisplayName(), len(msgs), last.State(), last.SenderName)
	}

	fmt.Println("Successfully seeded cache")
}

// dummyRoom builds n messages spread over the last few days, alternating
// senders at random. Only the newest message from the peer may be unread.
func dummyRoom(rng *rand.Rand, cipher encryption.Cipher, self domain.Identity, peer *domain.User, n int) ([]*domain.Message, error) {
	if n < 1 {
		n = 1
	}
	me := self.User()
	peerIdentity := domain.Identity{UserID: peer.ID, Name: peer.Name, Phone: peer.PhoneNumber}

	start := time.Now().Add(-time.Duration(n) * 3 * time.Hour)
	msgs := make([]*domain.Message, 0, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i)*3*time.Hour + time.Duration(rng.Intn(3600))*time.Second).UTC()

		sender, receiver := self, peer
		if rng.Float32() < 0.5 {
			sender, receiver = peerIdentity, &me
		}

		var msg *domain.Message
		if rng.Float32() < 0.9 {
			text := sampleTexts[rng.Intn(len(sampleTexts))]
			ciphertext, err := cipher.Encrypt(text)
			if err != nil {
				return nil, err
			}
			msg = domain.NewTextMessage(uuid.NewString(), sender, receiver, ciphertext, ts)
		} else {
			msg = domain.NewMediaMessage(uuid.NewString(), sender, receiver, domain.MessageTypeImage,
				fmt.Sprintf("https://example.com/images/%d.jpg", rng.Intn(1000)), ts)
		}
		msg.Key = uuid.Must(uuid.NewV7()).String()
		msg.Delivered = true
		msg.Read = i < n-1 || rng.Float32() < 0.5
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func initDatabase(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.NewGormLogger("gorm"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")

	if err := db.AutoMigrate(repository.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
