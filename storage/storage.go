// Package storage provides the Azure Table and Queue backed implementations
// of the pipeline's persistence ports.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/grvram01/person-service-repo/domain"
)

// Config names the tables and queues a service needs. Empty names are
// skipped; methods touching an unconfigured client will panic, which is the
// wanted failure mode for miswired deployments.
type Config struct {
	PersonsTable     string
	ChangesTable     string
	CheckpointsTable string
	AuditTable       string
	EventsQueue      string
	DeadLetterQueue  string
}

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	persons     *aztables.Client
	changes     *aztables.Client
	checkpoints *aztables.Client
	audit       *aztables.Client
	eventsQueue *azqueue.QueueClient
	deadLetter  *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr string, cfg Config) (*Storage, error) {
	tableOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tableOptions)
	if err != nil {
		return nil, err
	}

	s := &Storage{}
	if cfg.PersonsTable != "" {
		s.persons = svc.NewClient(cfg.PersonsTable)
	}
	if cfg.ChangesTable != "" {
		s.changes = svc.NewClient(cfg.ChangesTable)
	}
	if cfg.CheckpointsTable != "" {
		s.checkpoints = svc.NewClient(cfg.CheckpointsTable)
	}
	if cfg.AuditTable != "" {
		s.audit = svc.NewClient(cfg.AuditTable)
	}

	queueOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	if cfg.EventsQueue != "" {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, cfg.EventsQueue, &queueOptions)
		if err != nil {
			return nil, err
		}
		s.eventsQueue = q
	}
	if cfg.DeadLetterQueue != "" {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, cfg.DeadLetterQueue, &queueOptions)
		if err != nil {
			return nil, err
		}
		s.deadLetter = q
	}
	return s, nil
}

type personEntity struct {
	aztables.Entity
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	Address     string `json:"Address"`
	PhoneNumber string `json:"PhoneNumber"`
}

func (e personEntity) toPerson() domain.Person {
	return domain.Person{
		ID:          e.RowKey,
		FirstName:   e.FirstName,
		LastName:    e.LastName,
		Address:     e.Address,
		PhoneNumber: e.PhoneNumber,
	}
}

func personToEntity(p domain.Person) personEntity {
	return personEntity{
		Entity:      aztables.Entity{PartitionKey: p.ID, RowKey: p.ID},
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Address:     p.Address,
		PhoneNumber: p.PhoneNumber,
	}
}

// Insert writes a brand new person record. Ids are server-generated UUIDs,
// so key collisions do not happen in practice.
func (s *Storage) Insert(ctx context.Context, p domain.Person) error {
	payload, err := json.Marshal(personToEntity(p))
	if err != nil {
		return err
	}
	if _, err := s.persons.AddEntity(ctx, payload, nil); err != nil {
		return storeError(err)
	}
	return nil
}

// Get returns one record or domain.ErrNotFound.
func (s *Storage) Get(ctx context.Context, id string) (domain.Person, error) {
	ent, err := s.getPersonEntity(ctx, id)
	if err != nil {
		return domain.Person{}, err
	}
	return ent.toPerson(), nil
}

// List scans the whole table. Fine for the dataset sizes this service
// holds; deliberately unpaginated.
func (s *Storage) List(ctx context.Context) ([]domain.Person, error) {
	pager := s.persons.NewListEntitiesPager(nil)
	persons := []domain.Person{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, storeError(err)
		}
		for _, raw := range resp.Entities {
			var ent personEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			persons = append(persons, ent.toPerson())
		}
	}
	return persons, nil
}

// Replace overwrites every field of an existing record. UpdateEntity fails
// with 404 for unknown ids, so this never turns into an upsert; concurrent
// replacers both land and the later write wins, matching the store's
// last-writer-wins contract.
func (s *Storage) Replace(ctx context.Context, p domain.Person) error {
	payload, err := json.Marshal(personToEntity(p))
	if err != nil {
		return err
	}
	options := &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeReplace}
	if _, err := s.persons.UpdateEntity(ctx, payload, options); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *Storage) getPersonEntity(ctx context.Context, id string) (personEntity, error) {
	resp, err := s.persons.GetEntity(ctx, id, id, nil)
	if err != nil {
		return personEntity{}, storeError(err)
	}
	var ent personEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return personEntity{}, err
	}
	return ent, nil
}

// storeError maps Azure response errors onto the domain taxonomy: 404 means
// the record does not exist, everything else is a transient store failure
// the caller's scheduler may retry.
func storeError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 404 {
		return domain.ErrNotFound
	}
	return &domain.UnavailableError{Dependency: "record store", Err: err}
}
