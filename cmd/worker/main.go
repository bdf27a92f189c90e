/**
 * OCR Worker - Main Entry Point
 *
 * Redis-backed worker that turns raster images into recognized text, a
 * block/paragraph/line/word hierarchy, detected structural elements
 * (headings, lists, tables), and a derived document outline.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed job queue
 * - Fixed-size pool of Tesseract recognition workers
 * - Pixel preprocessing (contrast stretch / adaptive binarization)
 * - Heuristic structure extraction (title, metadata, TOC, sections)
 * - PostgreSQL persistence of results; per-job Redis progress channel
 */

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docuflow/ocr-worker/internal/config"
	"github.com/docuflow/ocr-worker/internal/engine"
	"github.com/docuflow/ocr-worker/internal/logging"
	"github.com/docuflow/ocr-worker/internal/queue"
	"github.com/docuflow/ocr-worker/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("ocr-worker")
	logger.Info("OCR worker starting",
		"redis", cfg.RedisURL,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerCount,
		"languages", cfg.Languages)

	// PostgreSQL persistence
	store, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()
	logger.Info("PostgreSQL connected")

	// Progress publisher
	progress, err := queue.NewProgressPublisher(cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("Failed to connect progress publisher: %v", err)
	}
	defer progress.Close()

	// OCR engine (pool is initialized lazily on first job)
	eng := engine.New(engine.Options{
		Languages:       cfg.Languages,
		PageSegMode:     cfg.PageSegMode,
		EngineMode:      cfg.EngineMode,
		Workers:         cfg.WorkerCount,
		Preprocess:      cfg.Preprocess,
		DetectStructure: cfg.DetectStructure,
		EnhanceImages:   cfg.EnhanceImages,
		Timeout:         time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
		Logger:          logger,
	})

	// Queue consumer
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.Concurrency,
		Engine:            eng,
		Store:             store,
		Progress:          progress,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	logger.Info("OCR worker is ready", "queue", cfg.QueueName, "concurrency", cfg.Concurrency)
	logger.Info("Waiting for jobs")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig)

	if err := consumer.Stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}
	if err := eng.Terminate(); err != nil {
		logger.Error("Error terminating engine", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("Error closing storage", "error", err)
	}

	logger.Info("Shutdown complete")
}
