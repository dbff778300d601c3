package stubapi

import (
	"errors"
	"sort"
	"sync"

	"github.com/shehryarbajwa/testbed/pkg/models"
)

// ErrUserNotFound is returned for unknown user ids.
var ErrUserNotFound = errors.New("user not found")

// Store is an in-memory set of users and posts.
type Store struct {
	mu     sync.RWMutex
	users  map[int]models.User
	posts  map[int][]models.Post
	nextID int
}

// NewStore returns a store seeded with a few users, each with one post.
func NewStore() *Store {
	s := &Store{
		users: make(map[int]models.User),
		posts: make(map[int][]models.Post),
	}
	seed := []models.User{
		{Name: "Leanne Graham", Username: "Bret", Email: "sincere@april.biz"},
		{Name: "Ervin Howell", Username: "Antonette", Email: "shanna@melissa.tv"},
		{Name: "Clementine Bauch", Username: "Samantha", Email: "nathan@yesenia.net"},
	}
	for _, u := range seed {
		created := s.Create(u)
		s.posts[created.ID] = []models.Post{{
			ID:     created.ID,
			UserID: created.ID,
			Title:  "first post by " + created.Username,
			Body:   "hello",
		}}
	}
	return s
}

// List returns all users ordered by id.
func (s *Store) List() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Get returns one user.
func (s *Store) Get(id int) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

// Create assigns an id and stores u.
func (s *Store) Create(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	u.ID = s.nextID
	s.users[u.ID] = u
	return u
}

// Update replaces user id with u.
func (s *Store) Update(id int, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return models.User{}, ErrUserNotFound
	}
	u.ID = id
	s.users[id] = u
	return u, nil
}

// Patch merges the non-empty fields of u into user id.
func (s *Store) Patch(id int, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	if u.Name != "" {
		cur.Name = u.Name
	}
	if u.Username != "" {
		cur.Username = u.Username
	}
	if u.Email != "" {
		cur.Email = u.Email
	}
	s.users[id] = cur
	return cur, nil
}

// Delete removes user id and their posts.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.posts, id)
	return nil
}

// Posts returns the posts of user id.
func (s *Store) Posts(id int) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[id]; !ok {
		return nil, ErrUserNotFound
	}
	return append([]models.Post(nil), s.posts[id]...), nil
}
