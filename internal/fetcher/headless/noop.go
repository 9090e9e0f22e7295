package headless

import (
	"context"
	"errors"

	"github.com/brandsignal/harvester/internal/collector"
)

// ErrRenderDisabled is returned by the Noop renderer.
var ErrRenderDisabled = errors.New("headless rendering disabled")

// Noop satisfies collector.Renderer for deployments that run without a
// browser. Every render attempt fails, so the strategy chain falls back
// to the plain fetch outcome.
type Noop struct{}

func (Noop) Render(context.Context, string) (collector.FetchResponse, error) {
	return collector.FetchResponse{}, ErrRenderDisabled
}
