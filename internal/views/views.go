package views

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/vidtube/backend/internal/models"
	"github.com/anonto42/vidtube/backend/internal/repositories"
)

// Parameter names bound at render time.
const (
	ParamVideoID   = "videoId"
	ParamViewerID  = "viewerId"
	ParamChannelID = "channelId"
	ParamUsername  = "username"
	ParamUserID    = "userId"
	ParamPage      = "page"
	ParamLimit     = "limit"
)

// View names, used as the metrics label.
const (
	ViewComments           = "comments"
	ViewLikedVideos        = "liked_videos"
	ViewSubscribers        = "subscribers"
	ViewSubscribedChannels = "subscribed_channels"
	ViewChannelProfile     = "channel_profile"
	ViewWatchHistory       = "watch_history"
)

var publicUserFields = []string{"username", "fullName", "avatar"}

// ownerJoin attaches the public fields of a document's owner as a single object.
func ownerJoin(localField, as string) []Stage {
	return []Stage{
		Join{
			From:         repositories.CollectionUsers,
			LocalField:   localField,
			ForeignField: "_id",
			As:           as,
			Pipeline:     []Stage{Project{Include: publicUserFields}},
		},
		Flatten{Field: as, Mode: FlattenFirst},
	}
}

func stages(groups ...[]Stage) []Stage {
	var out []Stage
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var videoSummaryFields = []string{
	"videoFile", "thumbnail", "owner", "title", "description",
	"duration", "views", "isPublished", "createdAt",
}

func prefixed(prefix string, fields []string) []string {
	out := make([]string, 0, len(fields)+1)
	out = append(out, prefix+"._id")
	for _, f := range fields {
		out = append(out, prefix+"."+f)
	}
	return out
}

// CommentsPipeline lists the comments of a video, newest first, with the public
// owner, the like count and whether the viewer liked each comment.
func CommentsPipeline() *Pipeline {
	return MustPipeline(ViewComments, stages(
		[]Stage{
			Filter{Conditions: []Condition{Eq("video", Param(ParamVideoID))}},
			Sort{Keys: []SortKey{Desc("createdAt"), Desc("_id")}},
		},
		ownerJoin("owner", "owner"),
		[]Stage{
			Join{
				From:         repositories.CollectionLikes,
				LocalField:   "_id",
				ForeignField: "comment",
				As:           "likes",
				Pipeline:     []Stage{Project{Include: []string{"likedBy"}, ExcludeID: true}},
			},
			Compute{Fields: []Field{
				{Name: "likeCount", Expr: Size("likes")},
				{Name: "viewerHasLiked", Expr: Contains(Param(ParamViewerID), "likes.likedBy")},
			}},
			Project{Include: []string{"content", "video", "owner", "likeCount", "viewerHasLiked", "createdAt", "updatedAt"}},
			Paginate{Page: Param(ParamPage), Limit: Param(ParamLimit)},
		},
	)...)
}

// LikedVideosPipeline lists the videos the viewer liked, most recently liked first,
// each with its public owner.
func LikedVideosPipeline() *Pipeline {
	return MustPipeline(ViewLikedVideos,
		Filter{Conditions: []Condition{
			Eq("likedBy", Param(ParamViewerID)),
			Exists("video"),
		}},
		Sort{Keys: []SortKey{Desc("createdAt"), Desc("_id")}},
		Join{
			From:         repositories.CollectionVideos,
			LocalField:   "video",
			ForeignField: "_id",
			As:           "likedVideo",
			Pipeline:     ownerJoin("owner", "owner"),
		},
		Flatten{Field: "likedVideo", Mode: FlattenUnwind},
		Project{Include: append([]string{"createdAt"}, prefixed("likedVideo", videoSummaryFields)...)},
	)
}

// SubscribersPipeline pages through the subscribers of a channel. The total is
// computed over every subscription of the channel.
func SubscribersPipeline() *Pipeline {
	return MustPipeline(ViewSubscribers,
		Filter{Conditions: []Condition{Eq("channel", Param(ParamChannelID))}},
		Sort{Keys: []SortKey{Desc("createdAt"), Desc("_id")}},
		Join{
			From:         repositories.CollectionUsers,
			LocalField:   "subscriber",
			ForeignField: "_id",
			As:           "subscriber",
			Pipeline:     []Stage{Project{Include: publicUserFields}},
		},
		Flatten{Field: "subscriber", Mode: FlattenUnwind},
		Project{Include: []string{"subscriber", "createdAt"}},
		Paginate{Page: Param(ParamPage), Limit: Param(ParamLimit)},
	)
}

// SubscribedChannelsPipeline lists the channels the viewer subscribes to, each with
// the channel's latest video in creation order.
func SubscribedChannelsPipeline() *Pipeline {
	return MustPipeline(ViewSubscribedChannels,
		Filter{Conditions: []Condition{Eq("subscriber", Param(ParamViewerID))}},
		Join{
			From:         repositories.CollectionUsers,
			LocalField:   "channel",
			ForeignField: "_id",
			As:           "channel",
			Pipeline: []Stage{
				Join{
					From:         repositories.CollectionVideos,
					LocalField:   "_id",
					ForeignField: "owner",
					As:           "videos",
					Pipeline:     []Stage{Sort{Keys: []SortKey{Asc("createdAt"), Asc("_id")}}},
				},
				Compute{Fields: []Field{{Name: "latestVideo", Expr: Last("videos")}}},
				Project{Include: append(append([]string{}, publicUserFields...), prefixed("latestVideo", videoSummaryFields)...)},
			},
		},
		Flatten{Field: "channel", Mode: FlattenUnwind},
		Sort{Keys: []SortKey{Desc("createdAt"), Desc("_id")}},
		Project{Include: []string{"channel", "createdAt"}},
	)
}

// ChannelProfilePipeline resolves a channel by handle with its subscriber count, the
// number of channels it subscribes to, and whether the viewer is subscribed.
func ChannelProfilePipeline() *Pipeline {
	return MustPipeline(ViewChannelProfile,
		Filter{Conditions: []Condition{Eq("username", Param(ParamUsername))}},
		Join{
			From:         repositories.CollectionSubscriptions,
			LocalField:   "_id",
			ForeignField: "channel",
			As:           "subscribers",
		},
		Join{
			From:         repositories.CollectionSubscriptions,
			LocalField:   "_id",
			ForeignField: "subscriber",
			As:           "subscribedTo",
		},
		Compute{Fields: []Field{
			{Name: "subscriberCount", Expr: Size("subscribers")},
			{Name: "channelSubscribedToCount", Expr: Size("subscribedTo")},
			{Name: "viewerIsSubscribed", Expr: Contains(Param(ParamViewerID), "subscribers.subscriber")},
		}},
		Project{Include: []string{
			"fullName", "username", "email", "avatar", "coverImage",
			"subscriberCount", "channelSubscribedToCount", "viewerIsSubscribed", "createdAt",
		}},
	)
}

// WatchHistoryPipeline returns the videos of a user's watch history with their public
// owners. $lookup does not keep the order of the local array, so the stored id order
// is carried along as historyOrder.
func WatchHistoryPipeline() *Pipeline {
	return MustPipeline(ViewWatchHistory,
		Filter{Conditions: []Condition{Eq("_id", Param(ParamUserID))}},
		Compute{Fields: []Field{{Name: "historyOrder", Expr: Ref("watchHistory")}}},
		Join{
			From:         repositories.CollectionVideos,
			LocalField:   "watchHistory",
			ForeignField: "_id",
			As:           "watchHistory",
			Pipeline:     ownerJoin("owner", "owner"),
		},
		Project{Include: []string{"historyOrder", "watchHistory"}},
	)
}

// OwnedVideo is a video summary with its owner's public fields.
type OwnedVideo struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id"`
	VideoFile   models.Asset       `json:"videoFile" bson:"videoFile"`
	Thumbnail   models.Asset       `json:"thumbnail" bson:"thumbnail"`
	Owner       models.UserCompact `json:"owner" bson:"owner"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	Duration    float64            `json:"duration" bson:"duration"`
	Views       int64              `json:"views" bson:"views"`
	IsPublished bool               `json:"isPublished" bson:"isPublished"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
}

// CommentView is one row of the comments view.
type CommentView struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id"`
	Content        string             `json:"content" bson:"content"`
	Video          primitive.ObjectID `json:"video" bson:"video"`
	Owner          models.UserCompact `json:"owner" bson:"owner"`
	LikeCount      int64              `json:"likeCount" bson:"likeCount"`
	ViewerHasLiked bool               `json:"viewerHasLiked" bson:"viewerHasLiked"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// LikedVideo is one row of the liked videos view.
type LikedVideo struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	LikedAt time.Time          `json:"likedAt" bson:"createdAt"`
	Video   OwnedVideo         `json:"likedVideo" bson:"likedVideo"`
}

// Subscriber is one row of the subscribers view.
type Subscriber struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id"`
	Subscriber   models.UserCompact `json:"subscriber" bson:"subscriber"`
	SubscribedAt time.Time          `json:"subscribedAt" bson:"createdAt"`
}

// ChannelSummary is a channel with its latest video, if any.
type ChannelSummary struct {
	ID          primitive.ObjectID   `json:"_id" bson:"_id"`
	Username    string               `json:"username" bson:"username"`
	FullName    string               `json:"fullName" bson:"fullName"`
	Avatar      models.Asset         `json:"avatar" bson:"avatar"`
	LatestVideo *models.VideoSummary `json:"latestVideo" bson:"latestVideo,omitempty"`
}

// SubscribedChannel is one row of the subscribed channels view.
type SubscribedChannel struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id"`
	Channel      ChannelSummary     `json:"channel" bson:"channel"`
	SubscribedAt time.Time          `json:"subscribedAt" bson:"createdAt"`
}

// ChannelProfile is the public profile of a channel as seen by a viewer.
type ChannelProfile struct {
	ID                       primitive.ObjectID `json:"_id" bson:"_id"`
	Username                 string             `json:"username" bson:"username"`
	FullName                 string             `json:"fullName" bson:"fullName"`
	Email                    string             `json:"email" bson:"email"`
	Avatar                   models.Asset       `json:"avatar" bson:"avatar"`
	CoverImage               models.Asset       `json:"coverImage" bson:"coverImage"`
	SubscriberCount          int64              `json:"subscriberCount" bson:"subscriberCount"`
	ChannelSubscribedToCount int64              `json:"channelSubscribedToCount" bson:"channelSubscribedToCount"`
	ViewerIsSubscribed       bool               `json:"isSubscribed" bson:"viewerIsSubscribed"`
	CreatedAt                time.Time          `json:"createdAt" bson:"createdAt"`
}

type watchHistoryRow struct {
	HistoryOrder []primitive.ObjectID `bson:"historyOrder"`
	WatchHistory []OwnedVideo         `bson:"watchHistory"`
}

// ordered returns the joined videos in stored history order. Deleted videos are
// skipped.
func (r watchHistoryRow) ordered() []OwnedVideo {
	byID := make(map[primitive.ObjectID]OwnedVideo, len(r.WatchHistory))
	for _, v := range r.WatchHistory {
		byID[v.ID] = v
	}
	out := make([]OwnedVideo, 0, len(r.HistoryOrder))
	for _, id := range r.HistoryOrder {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}
