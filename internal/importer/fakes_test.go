package importer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu       sync.Mutex
	byPhone  map[string]Customer
	created  []NewCustomer
	consents []uuid.UUID
	vehicles map[uuid.UUID][]NewVehicle

	findErr    error
	createErr  map[string]error
	consentErr error
	afterFind  func()
}

func newFakeRepo(existing ...string) *fakeRepo {
	r := &fakeRepo{
		byPhone:   map[string]Customer{},
		vehicles:  map[uuid.UUID][]NewVehicle{},
		createErr: map[string]error{},
	}
	for _, phone := range existing {
		r.byPhone[phone] = Customer{ID: uuid.New(), Phone: phone}
	}
	return r
}

func (r *fakeRepo) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Customer, error) {
	if r.afterFind != nil {
		defer r.afterFind()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byPhone[phone]; ok {
		return &c, nil
	}
	return nil, nil
}

func (r *fakeRepo) CreateCustomer(ctx context.Context, tenantID uuid.UUID, customer NewCustomer) (Customer, error) {
	if err := r.createErr[customer.Phone]; err != nil {
		return Customer{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byPhone[customer.Phone]; ok {
		return Customer{}, ErrDuplicateCustomer
	}
	c := Customer{ID: uuid.New(), FirstName: customer.FirstName, LastName: customer.LastName, Phone: customer.Phone}
	r.byPhone[customer.Phone] = c
	r.created = append(r.created, customer)
	return c, nil
}

func (r *fakeRepo) LogConsentEvent(ctx context.Context, tenantID, customerID uuid.UUID, action, source string) error {
	if r.consentErr != nil {
		return r.consentErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consents = append(r.consents, customerID)
	return nil
}

func (r *fakeRepo) ExistingPhones(ctx context.Context, tenantID uuid.UUID, phones []string) ([]string, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range phones {
		if _, ok := r.byPhone[p]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type attachingRepo struct {
	*fakeRepo
}

func (r attachingRepo) AttachVehicle(ctx context.Context, tenantID, customerID uuid.UUID, vehicle NewVehicle) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.vehicles[customerID] {
		if v.Year == vehicle.Year && v.Make == vehicle.Make && v.Model == vehicle.Model {
			return false, nil
		}
	}
	r.vehicles[customerID] = append(r.vehicles[customerID], vehicle)
	return true, nil
}

var errBoom = errors.New("boom")
