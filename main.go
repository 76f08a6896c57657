// raggate is a retrieval-augmented chat gateway. Clients hold one websocket
// per conversation; every user turn is grounded through embedding, vector
// search, and document fetch before the completion call.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/driftwoodlabs/raggate/config"
	"github.com/driftwoodlabs/raggate/docstore"
	"github.com/driftwoodlabs/raggate/llm"
	"github.com/driftwoodlabs/raggate/observability"
	"github.com/driftwoodlabs/raggate/rerank"
	"github.com/driftwoodlabs/raggate/retrieval"
	"github.com/driftwoodlabs/raggate/routes"
	"github.com/driftwoodlabs/raggate/session"
	"github.com/driftwoodlabs/raggate/storage"
	"github.com/driftwoodlabs/raggate/turn"
	"github.com/driftwoodlabs/raggate/vectorstore"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("raggate")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	if cfg.OTLPEndpoint != "" {
		cleanup, err := initTracer(cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("FATAL: failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	} else {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, trace export disabled")
	}

	metrics := observability.InitMetrics()

	sessions, err := storage.OpenSessionStore(cfg.SessionsDBPath)
	if err != nil {
		log.Fatalf("FATAL: could not open the session store: %v", err)
	}
	defer sessions.Close()

	index, err := vectorstore.NewWeaviateIndex(cfg.WeaviateURL)
	if err != nil {
		log.Fatalf("FATAL: could not connect to the vector index: %v", err)
	}

	llmClient, err := llm.NewOpenAIClient(cfg.OpenAI)
	if err != nil {
		log.Fatalf("FATAL: could not create the LLM client: %v", err)
	}

	docs, err := docstore.NewS3Store(context.Background(), cfg.S3)
	if err != nil {
		log.Fatalf("FATAL: could not create the document store: %v", err)
	}

	var reranker retrieval.Reranker
	if cfg.Cohere.APIKey != "" {
		cohere, err := rerank.NewCohereReranker(cfg.Cohere)
		if err != nil {
			log.Fatalf("FATAL: could not create the reranker: %v", err)
		}
		reranker = cohere
	} else {
		slog.Info("COHERE_API_KEY not set, reranking disabled")
	}

	pipeline := retrieval.NewPipeline(llmClient, index, docs, reranker, cfg.Retrieval)
	guard := session.NewGuard(sessions, cfg.Session.InactivityTimeout)
	orchestrator := turn.NewOrchestrator(guard, sessions, pipeline, llmClient, metrics)
	conversations := storage.NewConversationStore()

	router := gin.Default()
	router.Use(otelgin.Middleware("raggate"))
	routes.SetupRoutes(router, sessions, conversations, orchestrator, metrics)

	slog.Info("starting raggate", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}
