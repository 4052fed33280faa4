package chat

import "errors"

var (
	ErrOnlyClientsMayInitiate = errors.New("only clients may start a conversation")
	ErrEmailNotVerified       = errors.New("email not verified")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrEmptyBody              = errors.New("message body is empty")
	ErrNoActiveConversation   = errors.New("no active conversation")
	ErrInvalidStatus          = errors.New("invalid conversation status")
	ErrNoViewer               = errors.New("no viewer signed in")
	ErrInvalidParticipants    = errors.New("conversation needs an owner and a subject")
)
