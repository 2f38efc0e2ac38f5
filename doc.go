// Package avatarrelay relays real-time media between a voice-agent pipeline
// and a remote talking-avatar rendering backend over a meeting room.
//
// Synthesized speech handed to [Avatar.HandleAudioInput] is cut into
// fixed-size chunks and sent to the backend over the room's unreliable data
// channel. Audio and video rendered by the backend arrive as streams of the
// backend participant and are replayed through paced tracks that the
// meeting publishes.
//
// # Getting Started
//
//	cfg, err := config.Load(viper.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	avatar, err := avatarrelay.New(cfg, meetingRoom, negotiate.DefaultVideoInfo("face-id"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer avatar.Close()
//
//	if err := avatar.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// publish avatar.AudioTrack() and avatar.VideoTrack() to the meeting,
//	// then feed TTS output:
//	avatar.HandleAudioInput(pcm)
//
// # Connection Lifecycle
//
// Connect provisions a room, registers it with the avatar backend and joins
// it. The three steps form one attempt; a failed attempt is retried after a
// fixed [RetryBackoff] until [DefaultRetryBudget] attempts have failed, at
// which point Connect returns a [*ConnectionExhaustedError]. After a
// successful attempt Connect waits, without a timeout, for the backend
// participant to join the room.
//
// The session moves through [StateUnconnected], [StateNegotiating],
// [StateDegraded] (between attempts), [StateReady] and [StateClosed]. A
// closed session cannot be reopened.
//
// # Barge-in
//
// [Avatar.Interrupt] discards buffered avatar audio and unsent speech so
// playback stops as soon as the user starts talking.
package avatarrelay
