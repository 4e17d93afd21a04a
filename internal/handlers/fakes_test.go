package handlers_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
	"github.com/anonto42/vidtube/backend/internal/views"
)

type memoryUsers struct {
	mu        sync.Mutex
	byID      map[primitive.ObjectID]*models.User
	createErr error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[primitive.ObjectID]*models.User{}}
}

func (m *memoryUsers) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.byID {
		if u.Username == user.Username || u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	user.WatchHistory = []primitive.ObjectID{}
	user.CreatedAt = time.Now()
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	cp.WatchHistory = append([]primitive.ObjectID(nil), u.WatchHistory...)
	return &cp, nil
}

func (m *memoryUsers) GetPublicUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := m.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Password = ""
	u.RefreshToken = ""
	return u, nil
}

func (m *memoryUsers) FindByLogin(_ context.Context, username, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memoryUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUsers) update(id primitive.ObjectID, fn func(u *models.User) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	return fn(u)
}

func (m *memoryUsers) SetRefreshToken(_ context.Context, id primitive.ObjectID, token string) error {
	return m.update(id, func(u *models.User) error { u.RefreshToken = token; return nil })
}

func (m *memoryUsers) ClearRefreshToken(_ context.Context, id primitive.ObjectID) error {
	return m.update(id, func(u *models.User) error { u.RefreshToken = ""; return nil })
}

func (m *memoryUsers) UpdatePassword(_ context.Context, id primitive.ObjectID, digest string) error {
	return m.update(id, func(u *models.User) error { u.Password = digest; return nil })
}

func (m *memoryUsers) UpdateAccount(ctx context.Context, id primitive.ObjectID, fullName, email string) (*models.User, error) {
	m.mu.Lock()
	for otherID, u := range m.byID {
		if otherID != id && u.Email == email {
			m.mu.Unlock()
			return nil, repositories.ErrDuplicate
		}
	}
	m.mu.Unlock()

	err := m.update(id, func(u *models.User) error {
		u.FullName = fullName
		u.Email = email
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.GetPublicUserByID(ctx, id)
}

func (m *memoryUsers) ReplaceAsset(_ context.Context, id primitive.ObjectID, field string, asset models.Asset) (models.Asset, error) {
	var previous models.Asset
	err := m.update(id, func(u *models.User) error {
		switch field {
		case repositories.FieldAvatar:
			previous, u.Avatar = u.Avatar, asset
		case repositories.FieldCoverImage:
			previous, u.CoverImage = u.CoverImage, asset
		default:
			return errors.New("unknown asset field")
		}
		return nil
	})
	return previous, err
}

func (m *memoryUsers) PushWatchHistory(_ context.Context, id, videoID primitive.ObjectID) error {
	return m.update(id, func(u *models.User) error {
		kept := u.WatchHistory[:0]
		for _, v := range u.WatchHistory {
			if v != videoID {
				kept = append(kept, v)
			}
		}
		u.WatchHistory = append(kept, videoID)
		return nil
	})
}

type memoryVideos struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]*models.Video
}

func newMemoryVideos() *memoryVideos {
	return &memoryVideos{byID: map[primitive.ObjectID]*models.Video{}}
}

func (m *memoryVideos) CreateVideo(_ context.Context, video *models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if video.ID.IsZero() {
		video.ID = primitive.NewObjectID()
	}
	cp := *video
	m.byID[video.ID] = &cp
	return nil
}

func (m *memoryVideos) GetVideoByID(_ context.Context, id primitive.ObjectID) (*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memoryVideos) Exists(_ context.Context, id primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok, nil
}

func (m *memoryVideos) IncrementViews(_ context.Context, id primitive.ObjectID) (*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	v.Views++
	cp := *v
	return &cp, nil
}

type memoryComments struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]*models.Comment
}

func newMemoryComments() *memoryComments {
	return &memoryComments{byID: map[primitive.ObjectID]*models.Comment{}}
}

func (m *memoryComments) CreateComment(_ context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment.ID = primitive.NewObjectID()
	comment.CreatedAt = time.Now()
	comment.UpdatedAt = comment.CreatedAt
	cp := *comment
	m.byID[comment.ID] = &cp
	return nil
}

func (m *memoryComments) GetCommentByID(_ context.Context, id primitive.ObjectID) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryComments) UpdateContent(_ context.Context, id primitive.ObjectID, content string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c.Content = content
	cp := *c
	return &cp, nil
}

func (m *memoryComments) DeleteComment(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type likeKey struct {
	target   models.LikeTarget
	targetID primitive.ObjectID
	userID   primitive.ObjectID
}

type memoryLikes struct {
	mu    sync.Mutex
	liked map[likeKey]bool
}

func newMemoryLikes() *memoryLikes {
	return &memoryLikes{liked: map[likeKey]bool{}}
}

func (m *memoryLikes) ToggleLike(_ context.Context, target models.LikeTarget, targetID, userID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := likeKey{target, targetID, userID}
	if m.liked[k] {
		delete(m.liked, k)
		return false, nil
	}
	m.liked[k] = true
	return true, nil
}

func (m *memoryLikes) has(target models.LikeTarget, targetID, userID primitive.ObjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liked[likeKey{target, targetID, userID}]
}

func (m *memoryLikes) DeleteByComment(_ context.Context, commentID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.liked {
		if k.target == models.LikeTargetComment && k.targetID == commentID {
			delete(m.liked, k)
			n++
		}
	}
	return n, nil
}

type memorySubscriptions struct {
	mu   sync.Mutex
	subs map[[2]primitive.ObjectID]bool
}

func newMemorySubscriptions() *memorySubscriptions {
	return &memorySubscriptions{subs: map[[2]primitive.ObjectID]bool{}}
}

func (m *memorySubscriptions) ToggleSubscription(_ context.Context, subscriberID, channelID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]primitive.ObjectID{subscriberID, channelID}
	if m.subs[k] {
		delete(m.subs, k)
		return false, nil
	}
	m.subs[k] = true
	return true, nil
}

// stubViews returns canned view results and remembers the last page request.
type stubViews struct {
	mu       sync.Mutex
	lastPage views.PageRequest
	profile  *views.ChannelProfile
	err      error
}

func (s *stubViews) CommentsForVideo(_ context.Context, _, _ primitive.ObjectID, req views.PageRequest) (*views.Page[views.CommentView], error) {
	s.mu.Lock()
	s.lastPage = req
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return views.NewPage[views.CommentView](nil, 0, req), nil
}

func (s *stubViews) LikedVideos(context.Context, primitive.ObjectID) ([]views.LikedVideo, error) {
	return []views.LikedVideo{}, s.err
}

func (s *stubViews) Subscribers(_ context.Context, _ primitive.ObjectID, req views.PageRequest) (*views.Page[views.Subscriber], error) {
	s.mu.Lock()
	s.lastPage = req
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return views.NewPage[views.Subscriber](nil, 0, req), nil
}

func (s *stubViews) SubscribedChannels(context.Context, primitive.ObjectID) ([]views.SubscribedChannel, error) {
	return []views.SubscribedChannel{}, s.err
}

func (s *stubViews) ChannelProfile(context.Context, string, primitive.ObjectID) (*views.ChannelProfile, error) {
	return s.profile, s.err
}

func (s *stubViews) WatchHistory(context.Context, primitive.ObjectID) ([]views.OwnedVideo, error) {
	return []views.OwnedVideo{}, s.err
}

func (s *stubViews) page() views.PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPage
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context, *readpref.ReadPref) error { return p.err }
