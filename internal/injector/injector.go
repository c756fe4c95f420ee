//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/ballistics/internal/config"
	"github.com/zeusync/ballistics/internal/server"
)

func InitializeServer(cfg *config.Config) *server.Server {
	wire.Build(ProviderSet)
	return nil
}
