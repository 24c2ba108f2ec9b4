package app

import (
	"github.com/vk/amberrun/internal/registry"
	"github.com/vk/amberrun/internal/steps"
)

// coreModules is the definitive list of all step modules that are compiled
// into the amberrun binary.
var coreModules = []registry.Module{
	&steps.Module{},
}
