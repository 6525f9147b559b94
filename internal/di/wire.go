//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"sentioracle/pkg/config"
	"sentioracle/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function into wire_gen.go.
func InitializeApp(ctx context.Context, cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideLogAggregation,
		ProvidePublisher,
		ProvideTxLogStore,
		ProvideCycleMetricsStore,
		ProvideScoreCache,

		// Ingestion
		ProvideCredentialStore,
		ProvideRateLimiter,
		ProvideCollectors,
		ProvideDedupIndex,
		ProvideDedupCompanion,

		// Scoring and screening
		ProvideScorer,
		ProvideManipulationDetector,
		ProvideAggregator,

		// Chain write path
		ProvideChainClient,
		ProvideSigner,
		ProvideSubmitter,

		// Cycle driver and operator surface
		ProvideOrchestrator,
		ProvideAdminHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
