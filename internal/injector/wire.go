//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"
)

// InitializeApp wires the tool from the config file at path.
func InitializeApp(path string) (*App, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
