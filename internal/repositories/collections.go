package repositories

// MongoDB collection names shared by the repositories and the view builder.
const (
	CollectionUsers         = "users"
	CollectionVideos        = "videos"
	CollectionComments      = "comments"
	CollectionLikes         = "likes"
	CollectionSubscriptions = "subscriptions"
)
