package api

import (
	"context"

	"github.com/grvram01/person-service-repo/domain"
)

// PersonService abstracts the domain service for handlers.
type PersonService interface {
	Create(ctx context.Context, fields domain.Fields) (string, error)
	Get(ctx context.Context, id string) (domain.Person, error)
	GetAll(ctx context.Context) ([]domain.Person, error)
	Update(ctx context.Context, id string, fields domain.Fields) error
}

type createResponse struct {
	PersonID string `json:"personId"`
}
