package storefakes

import (
	"sync"

	"github.com/evolve-healthtech/evolve-go/credentials"
	"github.com/evolve-healthtech/evolve-go/users"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store for tests.
type FakeStore struct {
	lock         sync.Mutex
	user         *users.User
	accessToken  string
	refreshToken string

	SaveErr  error
	LoadErr  error
	ClearErr error

	saveCalls  int
	clearCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (s *FakeStore) Save(user *users.User, accessToken, refreshToken string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.saveCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.user = user
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	return nil
}

func (s *FakeStore) Load() (*users.User, string, string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.LoadErr != nil {
		return nil, "", "", s.LoadErr
	}
	return s.user, s.accessToken, s.refreshToken, nil
}

func (s *FakeStore) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.clearCalls++
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	return nil
}

// Seed sets the stored state directly, bypassing Save accounting.
func (s *FakeStore) Seed(user *users.User, accessToken, refreshToken string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.user = user
	s.accessToken = accessToken
	s.refreshToken = refreshToken
}

// Stored returns the current stored state.
func (s *FakeStore) Stored() (*users.User, string, string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.user, s.accessToken, s.refreshToken
}

// SaveCalls returns how many times Save was invoked.
func (s *FakeStore) SaveCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.saveCalls
}

// ClearCalls returns how many times Clear was invoked.
func (s *FakeStore) ClearCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.clearCalls
}
