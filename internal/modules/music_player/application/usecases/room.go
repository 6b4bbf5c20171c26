package usecases

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
	"github.com/sglre6355/roomcast/internal/serial"
)

// RoomRegistry stores the active room of each guild.
type RoomRegistry interface {
	Get(guildID snowflake.ID) (*Room, bool)
	LoadOrStore(guildID snowflake.ID, room *Room) (*Room, bool)
	CompareAndDelete(guildID snowflake.ID, room *Room) bool
	All() []*Room
}

// Room is one guild's playback session.
// Every field below exec is owned by the executor and must only be touched from tasks running on it.
type Room struct {
	guildID snowflake.ID
	exec    *serial.Executor
	saves   *serial.Executor

	// ctx is cancelled on teardown and scopes pipelines, streams and cache waits.
	ctx    context.Context
	cancel context.CancelFunc

	state *domain.RoomState
	conn  ports.VoiceConnection

	pipeline      ports.Pipeline
	pipelineSeek  time.Duration
	pipelineTempo float64
	generation    uint64

	playbackID   string
	reconnecting bool
	idleTimer    *time.Timer
}

func newRoom(parent context.Context, state *domain.RoomState, conn ports.VoiceConnection) *Room {
	ctx, cancel := context.WithCancel(parent)
	return &Room{
		guildID: state.GuildID(),
		saves:   serial.New(),
		ctx:     ctx,
		cancel:  cancel,
		state:   state,
		conn:    conn,
	}
}

// GuildID returns the guild the room belongs to.
func (r *Room) GuildID() snowflake.ID {
	return r.guildID
}

// position returns the source position of the attached pipeline.
func (r *Room) position() time.Duration {
	if r.pipeline == nil {
		return r.pipelineSeek
	}
	tempo := r.pipelineTempo
	if tempo <= 0 {
		tempo = 1
	}
	return r.pipelineSeek + time.Duration(float64(r.pipeline.Position())*tempo)
}

func (r *Room) stopIdleTimer() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
}

// RoomSnapshot is a point-in-time copy of a room's state.
type RoomSnapshot struct {
	GuildID               snowflake.ID
	VoiceChannelID        snowflake.ID
	NotificationChannelID snowflake.ID
	Status                domain.RoomStatus
	NowPlaying            *domain.QueuedTrack
	Position              time.Duration
	Queue                 []*domain.QueuedTrack
	LoopMode              domain.LoopMode
	Shuffle               bool
	StayConnected         bool
	Filters               []domain.Filter
	SkipVotes             int
	Reconnecting          bool
}

func (r *Room) snapshot() *RoomSnapshot {
	return &RoomSnapshot{
		GuildID:               r.guildID,
		VoiceChannelID:        r.state.VoiceChannelID(),
		NotificationChannelID: r.state.NotificationChannelID(),
		Status:                r.state.Status(),
		NowPlaying:            r.state.NowPlaying(),
		Position:              r.position(),
		Queue:                 r.state.Queue().List(),
		LoopMode:              r.state.LoopMode(),
		Shuffle:               r.state.Shuffle(),
		StayConnected:         r.state.StayConnected(),
		Filters:               r.state.Filters().Enabled(),
		SkipVotes:             r.state.SkipVoteCount(),
		Reconnecting:          r.reconnecting,
	}
}
