package models

import "time"

// PostStatus is the moderation state of a post.
type PostStatus int

const (
	StatusPending PostStatus = iota
	StatusOpen
	StatusClosed
	StatusDeleted
)

// PostType distinguishes questions and other top-level posts from answers and comments.
// Answers sort before comments within a thread.
type PostType int

const (
	TypeQuestion PostType = iota
	TypeAnswer
	TypeJob
	TypeForum
	TypePage
	TypeBlog
	TypeComment
	TypeData
	TypeTutorial
	TypeBoard
	TypeTool
	TypeNews
)

// Post represents a question, answer or comment. Answers and comments are
// ordinary posts linked to their thread through RootID and ParentID.
type Post struct {
	ID             int        `json:"id"`
	UID            string     `json:"uid" validate:"required,max=32"`
	Title          string     `json:"title" validate:"required,min=3,max=200"`
	Type           PostType   `json:"type" validate:"gte=0,lte=11"`
	Status         PostStatus `json:"status" validate:"gte=0,lte=3"`
	AuthorID       int        `json:"authorId" validate:"required,gt=0"`
	Author         *User      `json:"author,omitempty" validate:"-"`
	RootID         int        `json:"rootId"`
	ParentID       int        `json:"parentId"`
	Content        string     `json:"content" validate:"required,min=10,max=10000"`
	HTML           string     `json:"html"`
	TagVal         string     `json:"tagVal" validate:"max=100"`
	VoteCount      int        `json:"voteCount"`
	ViewCount      int        `json:"viewCount"`
	ReplyCount     int        `json:"replyCount"`
	CommentCount   int        `json:"commentCount"`
	HasAccepted    bool       `json:"hasAccepted"`
	Sticky         bool       `json:"sticky"`
	CreatedAt      time.Time  `json:"createdAt" validate:"required"`
	LastEditAt     time.Time  `json:"lastEditAt"`
	LastEditUserID int        `json:"lastEditUserId"`
}

// User is a forum account.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username" validate:"required,min=2,max=50,alphanum"`
	Email        string    `json:"email" validate:"required,email,max=254"`
	PasswordHash string    `json:"-" validate:"required"`
	Name         string    `json:"name" validate:"max=100"`
	IsModerator  bool      `json:"isModerator"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session binds a browser cookie token to a user until ExpiresAt.
type Session struct {
	Token     string    `json:"token"`
	UserID    int       `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
