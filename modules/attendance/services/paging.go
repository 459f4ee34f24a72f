package services

import (
	"github.com/autopeca/marketplace/pkg/constants"
)

// Page is an optional limit/offset pair from the caller. Zero means "use the default".
type Page struct {
	Limit  int `validate:"gte=0"`
	Offset int `validate:"gte=0"`
}

type pageLimits struct {
	def int
	max int
}

func (l pageLimits) apply(p Page) (Page, error) {
	if err := constants.Validate.Struct(p); err != nil {
		return Page{}, withCause(ErrInvalidParams, err)
	}
	if p.Limit == 0 {
		p.Limit = l.def
	}
	if l.max > 0 && p.Limit > l.max {
		p.Limit = l.max
	}
	return p, nil
}
