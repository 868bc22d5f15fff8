package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // registered for image.Decode
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dranie18/propertypro/internal/config"
	"github.com/dranie18/propertypro/internal/email"
	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/storage"
)

// TaskType defines the type of a background task.
const (
	TypeEmailDelivery = "email:deliver"
	TypeMediaProcess  = "media:process"
	TypeMediaCleanup  = "media:cleanup"
)

const mediaCollection = "property_media"

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg          *config.Config
	emailSender  email.Sender
	mediaStorage storage.IMediaStorage
	db           *mongo.Database
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	mediaStorage storage.IMediaStorage,
	db *mongo.Database,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:          cfg,
		emailSender:  emailSender,
		mediaStorage: mediaStorage,
		db:           db,
	}
}

// SetupServer configures an Asynq server instance and its handler mux.
// The caller runs it with srv.Run(mux).
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeMediaProcess, processor.HandleMediaProcessTask)
	mux.HandleFunc(TypeMediaCleanup, processor.HandleMediaCleanupTask)
	fmt.Println("Registered background task handlers.")

	return srv, mux
}

// --- Task Handlers ---

// EmailTaskPayload is the data for an email delivery task. The body is
// plain text; the handler adds the transport headers.
type EmailTaskPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, payload.To)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", payload.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", payload.Subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(payload.Body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{payload.To}, payload.Subject, []byte(sb.String())); err != nil {
		fmt.Printf("Email sending failed (will retry): %v\n", err)
		return err
	}

	fmt.Printf("Email task processed successfully: To=%s\n", payload.To)
	return nil
}

// MediaProcessPayload is the data for a photo normalization task.
type MediaProcessPayload struct {
	StorageKey string `json:"storage_key"`
	MediaID    string `json:"media_id"`
}

// HandleMediaProcessTask downloads an uploaded photo, bounds its dimensions,
// and writes the normalized version back under the same key. Videos never
// reach this handler.
func (p *TaskProcessor) HandleMediaProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload MediaProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal media task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Processing media task: Key=%s, MediaID=%s", payload.StorageKey, payload.MediaID)

	imgData, _, err := p.mediaStorage.Download(ctx, payload.StorageKey)
	if err != nil {
		// The row may have been deleted between enqueue and processing.
		log.Printf("Error downloading media object %s: %v", payload.StorageKey, err)
		return fmt.Errorf("failed to download media object: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding image %s: %v", payload.StorageKey, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.ImageMaxDimension)
	if uint(img.Bounds().Dx()) <= maxDim && uint(img.Bounds().Dy()) <= maxDim {
		log.Printf("Image %s (%s, %dx%d) within bounds, nothing to do", payload.StorageKey, format, img.Bounds().Dx(), img.Bounds().Dy())
		return nil
	}

	resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to re-encode resized image %s: %w", payload.StorageKey, err)
	}

	if err := p.mediaStorage.Upload(ctx, payload.StorageKey, "image/jpeg", buf.Bytes()); err != nil {
		return fmt.Errorf("failed to upload processed image %s: %w", payload.StorageKey, err)
	}

	log.Printf("Media task processed successfully: Key=%s resized to %dx%d", payload.StorageKey, resized.Bounds().Dx(), resized.Bounds().Dy())
	return nil
}

// MediaCleanupPayload is the data for a listing media cleanup task, enqueued
// when a listing is deleted.
type MediaCleanupPayload struct {
	ListingID string `json:"listing_id"`
}

// HandleMediaCleanupTask removes all media rows and stored objects that
// belonged to a deleted listing. Storage removals are logged but do not fail
// the task; the rows are deleted regardless so the cleanup converges.
func (p *TaskProcessor) HandleMediaCleanupTask(ctx context.Context, t *asynq.Task) error {
	var payload MediaCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup task payload: %v: %w", err, asynq.SkipRetry)
	}

	listingID, err := uuid.Parse(payload.ListingID)
	if err != nil {
		log.Printf("Invalid ListingID in cleanup task payload: %s", payload.ListingID)
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}

	collection := p.db.Collection(mediaCollection)

	cursor, err := collection.Find(ctx, bson.M{"listing_id": listingID})
	if err != nil {
		return fmt.Errorf("failed to query media rows for listing %s: %w", listingID, err)
	}
	var media []models.PropertyMedia
	if err = cursor.All(ctx, &media); err != nil {
		return fmt.Errorf("failed to decode media rows for listing %s: %w", listingID, err)
	}

	for _, m := range media {
		if m.StorageKey == "" {
			continue
		}
		if err := p.mediaStorage.Remove(ctx, m.StorageKey); err != nil {
			log.Printf("Error removing media object %s during cleanup: %v", m.StorageKey, err)
		}
	}

	result, err := collection.DeleteMany(ctx, bson.M{"listing_id": listingID})
	if err != nil {
		return fmt.Errorf("failed to delete media rows for listing %s: %w", listingID, err)
	}

	log.Printf("Media cleanup finished for listing %s: removed %d rows", listingID, result.DeletedCount)
	return nil
}
