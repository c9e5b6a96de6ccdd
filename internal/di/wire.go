//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/paeltech/savannaFx-sub000/pkg/config"
	"github.com/paeltech/savannaFx-sub000/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,
		ProvideSnowflake,

		// Infrastructure
		ProvideStores,
		ProvideRedis,
		ProvideCache,
		ProvideLocker,
		ProvideContacts,
		ProvideHub,
		ProvideGateway,
		ProvideEventPublisher,
		ProvideDeliveryLog,

		// Use cases
		ProvideSignalLedger,
		ProvideSubscriptionAccount,
		ProvideGroupAllocator,
		ProvideDispatcher,
		ProvideQueue,
		ProvideNotifier,

		// Background workers
		ProvideConsumer,
		ProvideScheduler,

		// Application server
		ProvideHandlers,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
