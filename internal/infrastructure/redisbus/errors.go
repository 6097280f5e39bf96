package redisbus

import "errors"

// Domain-specific errors for Redis pub/sub operations.
var (
	// ErrNotConnected is returned when the client has no live session.
	ErrNotConnected = errors.New("redisbus: client not connected")

	// ErrConnectionFailed is returned when dialling or pinging Redis fails.
	ErrConnectionFailed = errors.New("redisbus: connection failed")

	// ErrInvalidURL is returned when the Redis URL cannot be parsed.
	ErrInvalidURL = errors.New("redisbus: invalid url")

	// ErrInvalidTopic is returned for an empty topic or malformed filter.
	ErrInvalidTopic = errors.New("redisbus: invalid topic")

	// ErrSubscribeFailed is returned when a SUBSCRIBE or PSUBSCRIBE fails.
	ErrSubscribeFailed = errors.New("redisbus: subscribe failed")

	// ErrPublishQueueFull is returned when the outbound queue is saturated.
	ErrPublishQueueFull = errors.New("redisbus: publish queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("redisbus: client closed")
)
