package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[string]ports.Credentials
	byAddr map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]ports.Credentials{}, byAddr: map[string]string{}}
}

func (f *fakeUsers) FindOrCreateByAddress(ctx context.Context, address string) (*core.AuthenticatedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byAddr[address]; ok {
		u := f.byID[id].User
		return &u, nil
	}
	u := core.AuthenticatedUser{ID: uuid.NewString(), Address: address}
	f.byID[u.ID] = ports.Credentials{User: u}
	f.byAddr[address] = u.ID
	return &u, nil
}

func (f *fakeUsers) CreateEmailUser(ctx context.Context, creds ports.Credentials) (*core.AuthenticatedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.User.Email == creds.User.Email {
			return nil, core.ErrAlreadyExists
		}
	}
	creds.User.ID = uuid.NewString()
	f.byID[creds.User.ID] = creds
	u := creds.User
	return &u, nil
}

func (f *fakeUsers) GetCredentials(ctx context.Context, email string) (*ports.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.User.Email == email {
			out := c
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*core.AuthenticatedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	u := c.User
	return &u, nil
}

type fakePublisher struct {
	mu          sync.Mutex
	logouts     []string
	settlements []core.SettlementRecord
	err         error
}

func (p *fakePublisher) PublishLogout(ctx context.Context, userID, tokenID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, tokenID)
	return p.err
}

func (p *fakePublisher) PublishSettlementRecorded(ctx context.Context, record *core.SettlementRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settlements = append(p.settlements, *record)
	return p.err
}

type fakeSettlements struct {
	mu      sync.Mutex
	records []core.SettlementRecord
}

func (f *fakeSettlements) CreateSettlement(ctx context.Context, record *core.SettlementRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Kind == record.Kind && r.TransactionID == record.TransactionID {
			return core.ErrAlreadyExists
		}
	}
	record.ID = uuid.NewString()
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeSettlements) ListSettlements(ctx context.Context, kind core.SettlementKind, userID string) ([]core.SettlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.SettlementRecord
	for _, r := range f.records {
		if r.Kind == kind && (userID == "" || r.Metadata.UserID == userID) {
			out = append(out, r)
		}
	}
	return out, nil
}
