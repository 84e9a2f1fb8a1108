package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/incidentops/geolayers/internal/catalog"
	"github.com/incidentops/geolayers/internal/config"
	"github.com/incidentops/geolayers/internal/featurestore"
	"github.com/incidentops/geolayers/internal/geoserver"
	"github.com/incidentops/geolayers/internal/handlers"
	"github.com/incidentops/geolayers/internal/images"
	"github.com/incidentops/geolayers/internal/ingest"
	"github.com/incidentops/geolayers/internal/notify"
	"github.com/incidentops/geolayers/internal/store"
	"github.com/incidentops/geolayers/internal/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	log.Println("Starting Geolayers ingest service...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Service: %s, Port: %s", cfg.ServiceName, cfg.ServicePort)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	// Initialize MinIO client
	log.Println("Connecting to MinIO...")
	blobs, err := store.NewBlobStore(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
	)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO client: %v", err)
	}
	log.Println("MinIO client initialized")

	// Initialize MySQL catalog
	log.Println("Connecting to MySQL...")
	cat, err := catalog.NewMySQLCatalog(cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to initialize MySQL catalog: %v", err)
	}
	defer cat.Close()
	log.Println("MySQL catalog initialized")

	// The feature store shares the catalog's database
	features := featurestore.New(cat.DB())

	// Initialize Redis producer for layer change notifications
	log.Println("Connecting to Redis...")
	producer, err := notify.NewRedisProducer(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to initialize Redis producer: %v", err)
	}
	defer producer.Close()
	log.Println("Redis producer initialized")

	notifier := notify.New(producer, cfg.TopicNamespace)

	// Initialize GeoServer client
	mapserver := geoserver.New(cfg.GeoserverURL, cfg.GeoserverUsername, cfg.GeoserverPassword)

	// Initialize the ingest pipeline
	pipeline := ingest.New(cat, features, mapserver, blobs, notifier, images.ExifLocator{}, ingest.Options{
		UploadPath:         cfg.UploadPath,
		ImageFeaturePath:   cfg.ImageFeaturePath,
		WebserverURL:       cfg.WebserverURL,
		MapserverURL:       cfg.MapserverURL,
		ImageDatasourceURL: cfg.ImageLayerDatasourceURL,
		DigestAlgorithm:    cfg.DigestAlgorithm,
		GeoserverWorkspace: cfg.GeoserverWorkspace,
		GeoserverDatastore: cfg.GeoserverDatastore,
		ImageWorkspace:     cfg.ImageLayerWorkspace,
		ImageDatastore:     cfg.ImageLayerDatastore,
	})

	// Initialize handlers
	documentHandler := handlers.NewDocumentHandler(pipeline)
	shapefileHandler := handlers.NewShapefileHandler(pipeline)
	imageHandler := handlers.NewImageHandler(pipeline)
	imageFinishHandler := handlers.NewImageFinishHandler(pipeline)
	layerHandler := handlers.NewLayerHandler(pipeline)

	// Setup HTTP router
	router := mux.NewRouter()

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Upload operations with tracing
	router.Handle("/datalayers/{workspaceId}/document",
		otelhttp.NewHandler(documentHandler, "POST /datalayers/{workspaceId}/document")).Methods("POST")
	router.Handle("/datalayers/{workspaceId}/shapefile",
		otelhttp.NewHandler(shapefileHandler, "POST /datalayers/{workspaceId}/shapefile")).Methods("POST")
	router.Handle("/datalayers/{workspaceId}/image/{id}",
		otelhttp.NewHandler(imageHandler, "POST /datalayers/{workspaceId}/image/{id}")).Methods("POST")
	router.Handle("/datalayers/{workspaceId}/image/{id}/finish",
		otelhttp.NewHandler(imageFinishHandler, "POST /datalayers/{workspaceId}/image/{id}/finish")).Methods("POST")

	// Layer maintenance with tracing
	router.Handle("/datalayers/{datalayerId}",
		otelhttp.NewHandler(http.HandlerFunc(layerHandler.Update), "POST /datalayers/{datalayerId}")).Methods("POST")
	router.Handle("/datalayers/{datalayerId}",
		otelhttp.NewHandler(http.HandlerFunc(layerHandler.Delete), "DELETE /datalayers/{datalayerId}")).Methods("DELETE")
	router.Handle("/collabroom/{collabroomId}/datalayers/{datalayerId}",
		otelhttp.NewHandler(http.HandlerFunc(layerHandler.AddToCollabroom), "POST /collabroom/{collabroomId}/datalayers/{datalayerId}")).Methods("POST")
	router.Handle("/collabroom/datalayers",
		otelhttp.NewHandler(http.HandlerFunc(layerHandler.RemoveFromCollabrooms), "DELETE /collabroom/datalayers")).Methods("DELETE")

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on port %s", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
