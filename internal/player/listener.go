package player

import "github.com/zsiec/playcore/internal/media"

// Listener receives playback notifications. Calls are made one at a time,
// in order, on a goroutine owned by the Player; a slow Listener delays
// later notifications but never the playback actors.
type Listener interface {
	PositionUpdate(us int64)
	DurationKnown(us int64)
	FrameStats(total, dropped int64)
	SeekComplete()
	ResetComplete()
	PlaybackComplete()
	Error(err error)
	VideoSizeChanged(width, height int)
	BufferingStateChanged(buffering bool)
	RenderingStart()
	TimedText(cue media.TextCue)
}

// BaseListener ignores every notification. Embed it to implement only the
// methods you need.
type BaseListener struct{}

func (BaseListener) PositionUpdate(int64)       {}
func (BaseListener) DurationKnown(int64)        {}
func (BaseListener) FrameStats(int64, int64)    {}
func (BaseListener) SeekComplete()              {}
func (BaseListener) ResetComplete()             {}
func (BaseListener) PlaybackComplete()          {}
func (BaseListener) Error(error)                {}
func (BaseListener) VideoSizeChanged(int, int)  {}
func (BaseListener) BufferingStateChanged(bool) {}
func (BaseListener) RenderingStart()            {}
func (BaseListener) TimedText(media.TextCue)    {}
