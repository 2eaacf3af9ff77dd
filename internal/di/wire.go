//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinFusion/pkg/config"
	"FinFusion/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application with
// a cleanup that closes infrastructure clients.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideCache,

		// Repositories
		ProvideFeatureStore,
		ProvideDecisionStore,
		ProvideDecisionPublisher,

		// Engines
		ProvideTrainingLimiter,
		ProvideEngineRegistry,
		ProvideHistory,
		ProvideDeriver,

		// Use cases and transports
		ProvideHub,
		ProvideConfluenceUseCase,
		ProvideTrainingUseCase,
		ProvideKafkaConsumer,
		ProvideKafkaCandlesHandler,
		ProvideConfluenceHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
