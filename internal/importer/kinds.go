package importer

import (
	"errors"
	"fmt"

	"github.com/research-office/research-registry/internal/entity"
)

// ErrUnknownKind is returned for import kinds other than projects and groups.
var ErrUnknownKind = errors.New("unknown import kind")

// Kinds lists the supported import kinds.
func Kinds() []string {
	return []string{KindProjects, KindGroups}
}

// HandlerFor returns the row handler for kind.
func HandlerFor(kind string, h *entity.Handlers) (RowHandler, error) {
	switch kind {
	case KindProjects:
		return NewProjectRows(h), nil
	case KindGroups:
		return NewGroupRows(h), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
