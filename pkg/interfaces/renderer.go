package interfaces

import (
	"io"

	"github.com/m-mizutani/caselog/pkg/model"
)

// Renderer turns the ordered timeline into a printable document. Layout is
// entirely the renderer's responsibility; the core only hands over the value.
type Renderer interface {
	Render(w io.Writer, timeline *model.Timeline) error
}
