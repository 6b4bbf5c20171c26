package usecases

import "github.com/sglre6355/roomcast/internal/modules/music_player/domain"

// Errors returned by the services, re-exported for the presentation layer.
var (
	ErrNotConnected          = domain.ErrRoomNotFound
	ErrRoomDestroyed         = domain.ErrRoomDestroyed
	ErrUserNotInVoice        = domain.ErrUserNotInVoice
	ErrNotInSameChannel      = domain.ErrNotInSameChannel
	ErrNotPlaying            = domain.ErrNotPlaying
	ErrAlreadyPaused         = domain.ErrAlreadyPaused
	ErrNotPaused             = domain.ErrNotPaused
	ErrNoResults             = domain.ErrNoResults
	ErrQueueEmpty            = domain.ErrQueueEmpty
	ErrNothingToClear        = domain.ErrNothingToClear
	ErrInvalidPosition       = domain.ErrInvalidPosition
	ErrInvalidTimestamp      = domain.ErrInvalidTimestamp
	ErrUnknownFilter         = domain.ErrUnknownFilter
	ErrBusy                  = domain.ErrBusy
	ErrSeekRejected          = domain.ErrSeekRejected
	ErrNotCached             = domain.ErrNotCached
	ErrSourceUnavailable     = domain.ErrSourceUnavailable
	ErrVoiceReconnectTimeout = domain.ErrVoiceReconnectTimeout
	ErrRoomFault             = domain.ErrRoomFault
)
