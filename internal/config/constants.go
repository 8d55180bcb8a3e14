package config

const (
	// Credit
	DefaultGrantorCredit = 20

	// Ratings
	MinRating = 1
	MaxRating = 5

	// Task fields
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000

	// Chat
	MaxMessageLength = 2000
)
