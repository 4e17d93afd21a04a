package views

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/anonto42/vidtube/backend/internal/apperr"
	"github.com/anonto42/vidtube/backend/internal/metrics"
	"github.com/anonto42/vidtube/backend/internal/repositories"
)

// Page size bounds.
const (
	DefaultLimit int64 = 10
	MaxLimit     int64 = 100
)

// PageRequest is a normalized page/limit pair.
type PageRequest struct {
	Page  int64
	Limit int64
}

// NewPageRequest clamps page to >= 1 and limit to [1, MaxLimit], defaulting to
// DefaultLimit.
func NewPageRequest(page, limit int64) PageRequest {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return PageRequest{Page: page, Limit: limit}
}

// Offset is the number of items before the page. It fails with a ValidationError when
// the page is too far out for the offset to fit in an int64.
func (r PageRequest) Offset() (int64, error) {
	if r.Page < 1 || r.Limit < 1 {
		return 0, apperr.Validation("page and limit must be positive")
	}
	if r.Page-1 > math.MaxInt64/r.Limit {
		return 0, apperr.Validation("page is out of range")
	}
	return (r.Page - 1) * r.Limit, nil
}

// Page is one page of a paginated view. TotalCount covers the full result set.
type Page[T any] struct {
	Items       []T   `json:"items"`
	TotalCount  int64 `json:"totalCount"`
	Page        int64 `json:"page"`
	Limit       int64 `json:"limit"`
	PageCount   int64 `json:"pageCount"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// NewPage builds a page from one slice of items and the size of the full result set.
func NewPage[T any](items []T, total int64, req PageRequest) *Page[T] {
	if items == nil {
		items = []T{}
	}
	pageCount := (total + req.Limit - 1) / req.Limit
	return &Page[T]{
		Items:       items,
		TotalCount:  total,
		Page:        req.Page,
		Limit:       req.Limit,
		PageCount:   pageCount,
		HasNextPage: req.Page < pageCount,
		HasPrevPage: req.Page > 1,
	}
}

type facetResult[T any] struct {
	Items []T `bson:"items"`
	Total []struct {
		Count int64 `bson:"count"`
	} `bson:"total"`
}

// Service executes the fixed views against MongoDB.
type Service struct {
	db      *mongo.Database
	metrics *metrics.Metrics
	logger  *slog.Logger

	likedEmptyIsNotFound bool

	comments           *Pipeline
	likedVideos        *Pipeline
	subscribers        *Pipeline
	subscribedChannels *Pipeline
	channelProfile     *Pipeline
	watchHistory       *Pipeline
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records view latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithLikedVideosEmptyIsNotFound makes an empty liked-videos view a NotFound error
// instead of an empty list.
func WithLikedVideosEmptyIsNotFound(enabled bool) Option {
	return func(s *Service) { s.likedEmptyIsNotFound = enabled }
}

// NewService composes every view once.
func NewService(db *mongo.Database, opts ...Option) *Service {
	s := &Service{
		db:                 db,
		logger:             slog.Default(),
		comments:           CommentsPipeline(),
		likedVideos:        LikedVideosPipeline(),
		subscribers:        SubscribersPipeline(),
		subscribedChannels: SubscribedChannelsPipeline(),
		channelProfile:     ChannelProfilePipeline(),
		watchHistory:       WatchHistoryPipeline(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CommentsForVideo pages through a video's comments as seen by viewerID.
func (s *Service) CommentsForVideo(ctx context.Context, videoID, viewerID primitive.ObjectID, req PageRequest) (*Page[CommentView], error) {
	return runPaged[CommentView](ctx, s, s.comments, repositories.CollectionComments, Params{
		ParamVideoID:  videoID,
		ParamViewerID: viewerID,
	}, req)
}

// LikedVideos lists the videos viewerID liked.
func (s *Service) LikedVideos(ctx context.Context, viewerID primitive.ObjectID) ([]LikedVideo, error) {
	out, err := runAll[LikedVideo](ctx, s, s.likedVideos, repositories.CollectionLikes, Params{
		ParamViewerID: viewerID,
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 && s.likedEmptyIsNotFound {
		return nil, apperr.NotFound("Liked videos")
	}
	return out, nil
}

// Subscribers pages through the subscribers of channelID.
func (s *Service) Subscribers(ctx context.Context, channelID primitive.ObjectID, req PageRequest) (*Page[Subscriber], error) {
	return runPaged[Subscriber](ctx, s, s.subscribers, repositories.CollectionSubscriptions, Params{
		ParamChannelID: channelID,
	}, req)
}

// SubscribedChannels lists the channels viewerID subscribes to.
func (s *Service) SubscribedChannels(ctx context.Context, viewerID primitive.ObjectID) ([]SubscribedChannel, error) {
	return runAll[SubscribedChannel](ctx, s, s.subscribedChannels, repositories.CollectionSubscriptions, Params{
		ParamViewerID: viewerID,
	})
}

// ChannelProfile resolves the channel with the given handle.
func (s *Service) ChannelProfile(ctx context.Context, username string, viewerID primitive.ObjectID) (*ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, apperr.Validation("username is missing")
	}
	out, err := runAll[ChannelProfile](ctx, s, s.channelProfile, repositories.CollectionUsers, Params{
		ParamUsername: username,
		ParamViewerID: viewerID,
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("Channel")
	}
	return &out[0], nil
}

// WatchHistory returns userID's watch history in stored order, most recent last.
func (s *Service) WatchHistory(ctx context.Context, userID primitive.ObjectID) ([]OwnedVideo, error) {
	rows, err := runAll[watchHistoryRow](ctx, s, s.watchHistory, repositories.CollectionUsers, Params{
		ParamUserID: userID,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("User")
	}
	return rows[0].ordered(), nil
}

func (s *Service) aggregate(ctx context.Context, p *Pipeline, collection string, params Params) (*mongo.Cursor, error) {
	pipeline, err := p.Render(params)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, oops.In("views").Code("AGGREGATE_FAILED").With("view", p.Name()).Wrap(err)
	}
	return cur, nil
}

func runAll[T any](ctx context.Context, s *Service, p *Pipeline, collection string, params Params) (out []T, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveView(p.Name(), started, err) }()

	cur, err := s.aggregate(ctx, p, collection, params)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out = []T{}
	if err = cur.All(ctx, &out); err != nil {
		return nil, oops.In("views").Code("DECODE_FAILED").With("view", p.Name()).Wrap(err)
	}
	return out, nil
}

func runPaged[T any](ctx context.Context, s *Service, p *Pipeline, collection string, params Params, req PageRequest) (page *Page[T], err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveView(p.Name(), started, err) }()

	req = NewPageRequest(req.Page, req.Limit)
	bound := make(Params, len(params)+2)
	for k, v := range params {
		bound[k] = v
	}
	bound[ParamPage] = req.Page
	bound[ParamLimit] = req.Limit

	cur, err := s.aggregate(ctx, p, collection, bound)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var result facetResult[T]
	if cur.Next(ctx) {
		if err = cur.Decode(&result); err != nil {
			return nil, oops.In("views").Code("DECODE_FAILED").With("view", p.Name()).Wrap(err)
		}
	}
	if err = cur.Err(); err != nil {
		return nil, oops.In("views").Code("CURSOR_FAILED").With("view", p.Name()).Wrap(err)
	}

	var total int64
	if len(result.Total) > 0 {
		total = result.Total[0].Count
	}
	s.logger.DebugContext(ctx, "view executed",
		slog.String("view", p.Name()),
		slog.Int64("page", req.Page),
		slog.Int64("total", total),
	)
	return NewPage(result.Items, total, req), nil
}
