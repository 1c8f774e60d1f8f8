package service

import "errors"

var (
	ErrDeliveryWrite     = errors.New("delivery state write failed")
	ErrRoomClosed        = errors.New("room is closed")
	ErrRoomNotOpen       = errors.New("room is not open")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrGroupNotFound     = errors.New("group not found")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrInvalidTarget     = errors.New("exactly one of peer or group must be set")
)
