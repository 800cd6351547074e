package service

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// EndpointsKey is the store key of the saved endpoint list.
const EndpointsKey = "savedArcgisEndpoints"

var (
	ErrEmptyURL          = errors.New("please enter a URL first")
	ErrEmptyName         = errors.New("endpoint name is required")
	ErrDuplicateEndpoint = errors.New("this URL is already in the saved list")
)

// StorageError reports a failure of the endpoint store.
type StorageError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("could not %s endpoint list: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EndpointService manages the saved endpoint list.
type EndpointService struct {
	store    KVStore
	bus      *EventBus
	log      *zap.Logger
	validate *validator.Validate

	mu        sync.RWMutex
	endpoints []Endpoint
	collator  *collate.Collator
}

// NewEndpointService creates an endpoint service. Call Load before use.
func NewEndpointService(store KVStore, bus *EventBus, log *zap.Logger) *EndpointService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EndpointService{
		store:     store,
		bus:       bus,
		log:       log,
		validate:  validator.New(),
		endpoints: append([]Endpoint(nil), DefaultEndpoints...),
		collator:  collate.New(language.English),
	}
}

// Load reads the saved list. A missing or non-array payload is replaced by
// the defaults and written back; a read or parse failure falls back to the
// defaults and returns a *StorageError.
func (s *EndpointService) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, found, err := s.store.Get(EndpointsKey)
	if err != nil {
		s.endpoints = append([]Endpoint(nil), DefaultEndpoints...)
		s.log.Error("loading endpoints failed", zap.Error(err))
		return &StorageError{Op: "load", Err: err}
	}
	if !found {
		s.endpoints = append([]Endpoint(nil), DefaultEndpoints...)
		return s.saveLocked()
	}
	if !gjson.Valid(raw) {
		s.endpoints = append([]Endpoint(nil), DefaultEndpoints...)
		s.log.Error("stored endpoints are not valid JSON")
		return &StorageError{Op: "load", Err: errors.New("invalid JSON")}
	}

	list := gjson.Parse(raw)
	if !list.IsArray() {
		s.log.Warn("stored endpoints are not an array, resetting to defaults")
		s.endpoints = append([]Endpoint(nil), DefaultEndpoints...)
		return s.saveLocked()
	}

	endpoints := make([]Endpoint, 0, len(list.Array()))
	list.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		ep := Endpoint{Name: v.Get("name").String(), URL: v.Get("url").String()}
		if ep.URL != "" {
			endpoints = append(endpoints, ep)
		}
		return true
	})
	s.endpoints = endpoints
	s.log.Debug("endpoints loaded", zap.Int("count", len(endpoints)))
	return nil
}

// List returns the saved endpoints in display order.
func (s *EndpointService) List() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Endpoint(nil), s.endpoints...)
}

// Get returns the endpoint at index i.
func (s *EndpointService) Get(i int) (Endpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.endpoints) {
		return Endpoint{}, false
	}
	return s.endpoints[i], true
}

// Add saves a new endpoint and returns its index in the sorted list. When
// persisting fails the endpoint stays in the in-memory list and a
// *StorageError is returned alongside the index.
func (s *EndpointService) Add(name, url string) (int, error) {
	ep := Endpoint{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)}
	if ep.URL == "" {
		return -1, ErrEmptyURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.endpoints {
		if existing.URL == ep.URL {
			return -1, ErrDuplicateEndpoint
		}
	}
	if err := s.validate.Struct(ep); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Name" && verrs[0].Tag() == "required" {
			return -1, ErrEmptyName
		}
		return -1, fmt.Errorf("invalid endpoint: %w", err)
	}

	s.endpoints = append(s.endpoints, ep)
	s.sortLocked()

	idx := -1
	for i, e := range s.endpoints {
		if e.URL == ep.URL {
			idx = i
			break
		}
	}

	s.log.Info("endpoint added", zap.String("name", ep.Name), zap.String("url", ep.URL))
	if s.bus != nil {
		s.bus.Publish(Event{Resource: "endpoints", Action: "created", ID: ep.URL})
	}
	return idx, s.saveLocked()
}

func (s *EndpointService) sortLocked() {
	slices.SortStableFunc(s.endpoints, func(a, b Endpoint) int {
		return s.collator.CompareString(a.Name, b.Name)
	})
}

func (s *EndpointService) saveLocked() error {
	raw := "[]"
	for _, ep := range s.endpoints {
		var err error
		if raw, err = sjson.Set(raw, "-1", ep); err != nil {
			return &StorageError{Op: "save", Err: err}
		}
	}
	if err := s.store.Set(EndpointsKey, raw); err != nil {
		s.log.Error("saving endpoints failed", zap.Error(err))
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}
