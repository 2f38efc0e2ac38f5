package wsroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/opd-ai/avatarrelay/limits"
	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/room"
	"github.com/opd-ai/avatarrelay/track"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 40 * time.Second
	joinTimeout  = 30 * time.Second
)

var (
	// ErrNotJoined is returned by Send and Publish outside a joined session.
	ErrNotJoined = errors.New("wsroom: not joined")

	// ErrAlreadyJoined is returned by Join on a connected room.
	ErrAlreadyJoined = errors.New("wsroom: already joined")

	// ErrJoinRejected is returned when the bridge answers a join with an
	// error message.
	ErrJoinRejected = errors.New("wsroom: join rejected")
)

// Config configures a bridge connection.
type Config struct {
	// URL is the ws:// or wss:// bridge endpoint.
	URL string

	Dialer *websocket.Dialer
	Header http.Header
}

// Room is a room.Room backed by a websocket media bridge.
type Room struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	peerID string

	mu           sync.RWMutex
	conn         *websocket.Conn
	joined       bool
	handlers     []room.EventHandler
	participants map[string]*participant
	streams      map[uint32]*stream

	writeMu sync.Mutex
	done    chan struct{}
}

// New validates cfg and returns an unjoined Room.
func New(cfg Config) (*Room, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid bridge URL scheme %q", u.Scheme)
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := cfg.Header.Clone()
	if header == nil {
		header = http.Header{}
	}

	return &Room{
		url:          cfg.URL,
		dialer:       dialer,
		header:       header,
		peerID:       uuid.NewString(),
		participants: make(map[string]*participant),
		streams:      make(map[uint32]*stream),
	}, nil
}

// Join implements room.Room. It dials the bridge, sends the join request
// and waits for the bridge to confirm it.
func (r *Room) Join(ctx context.Context, cfg room.JoinConfig) error {
	r.mu.Lock()
	if r.joined {
		r.mu.Unlock()
		return ErrAlreadyJoined
	}
	r.mu.Unlock()

	header := r.header.Clone()
	if cfg.Token != "" {
		header.Set("Authorization", cfg.Token)
	}

	conn, _, err := r.dialer.DialContext(ctx, r.url, header)
	if err != nil {
		return fmt.Errorf("failed to dial bridge: %w", err)
	}
	conn.SetReadLimit(limits.MaxBridgeMessage)

	if err := r.handshake(ctx, conn, cfg); err != nil {
		conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.joined = true
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go r.readLoop(conn, done)
	go r.pingLoop(conn, done)

	logrus.WithFields(logrus.Fields{
		"function":   "Room.Join",
		"meeting_id": cfg.MeetingID,
		"peer_id":    r.peerID,
	}).Info("Joined meeting through bridge")
	return nil
}

func (r *Room) handshake(ctx context.Context, conn *websocket.Conn, cfg room.JoinConfig) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(joinTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(controlMessage{
		Type:          msgJoin,
		MeetingID:     cfg.MeetingID,
		Name:          cfg.Name,
		Token:         cfg.Token,
		PeerID:        r.peerID,
		MicEnabled:    cfg.MicEnabled,
		WebcamEnabled: cfg.WebcamEnabled,
	}); err != nil {
		return fmt.Errorf("failed to send join: %w", err)
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read join reply: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("malformed join reply: %w", err)
		}
		switch msg.Type {
		case msgJoined:
			return nil
		case msgError:
			return fmt.Errorf("%w: %s", ErrJoinRejected, msg.Message)
		}
	}
}

// Leave implements room.Room.
func (r *Room) Leave() error {
	r.mu.Lock()
	if !r.joined {
		r.mu.Unlock()
		return nil
	}
	conn := r.conn
	r.mu.Unlock()

	_ = r.writeJSON(controlMessage{Type: msgLeave, PeerID: r.peerID})
	r.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMu.Unlock()

	r.teardown(conn)

	logrus.WithFields(logrus.Fields{
		"function": "Room.Leave",
		"peer_id":  r.peerID,
	}).Info("Left meeting")
	return nil
}

// teardown closes conn and every remote stream once.
func (r *Room) teardown(conn *websocket.Conn) {
	r.mu.Lock()
	if r.conn != conn || !r.joined {
		r.mu.Unlock()
		return
	}
	r.joined = false
	r.conn = nil
	close(r.done)
	participants := r.participants
	r.participants = make(map[string]*participant)
	r.streams = make(map[uint32]*stream)
	handlers := append([]room.EventHandler(nil), r.handlers...)
	r.mu.Unlock()

	conn.Close()
	for _, p := range participants {
		p.closeStreams()
		for _, h := range handlers {
			h.OnParticipantLeft(p)
		}
	}
}

// AddEventListener implements room.Room.
func (r *Room) AddEventListener(h room.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Send implements room.Sender.
func (r *Room) Send(ctx context.Context, data []byte, opts room.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := limits.ValidateMessageSize(data, limits.MaxBridgeMessage-2); err != nil {
		return err
	}

	msg := make([]byte, 0, len(data)+2)
	msg = append(msg, frameData, byte(opts.Reliability))
	msg = append(msg, data...)
	return r.writeBinary(msg)
}

// Publish implements room.Publisher. It announces one audio and one video
// stream and forwards frames pulled from the sources until ctx is done or
// the sources end.
func (r *Room) Publish(ctx context.Context, audio room.AudioSource, video room.VideoSource) error {
	audioPk, err := newPacketizer(PayloadTypeL16)
	if err != nil {
		return err
	}
	videoPk, err := newPacketizer(PayloadTypeVideo)
	if err != nil {
		return err
	}

	if err := r.writeJSON(controlMessage{Type: msgPublish, PeerID: r.peerID, Kind: media.KindAudio, SSRC: audioPk.ssrc, Codec: CodecL16}); err != nil {
		return err
	}
	if err := r.writeJSON(controlMessage{Type: msgPublish, PeerID: r.peerID, Kind: media.KindVideo, SSRC: videoPk.ssrc, Codec: CodecRaw}); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Room.Publish",
		"audio_ssrc": audioPk.ssrc,
		"video_ssrc": videoPk.ssrc,
	}).Info("Publishing local tracks")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			f := audio.Recv(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err := r.writeFrames(audioPk, swapBytes(f.Payload), uint32(f.PTS)); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		for {
			f, err := video.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, track.ErrTrackEnded) {
					return nil
				}
				return err
			}
			if err := r.writeFrames(videoPk, f.Payload, uint32(f.PTS)); err != nil {
				return err
			}
		}
	})
	return g.Wait()
}

func (r *Room) writeFrames(p *packetizer, payload []byte, timestamp uint32) error {
	frames, err := p.packetize(payload, timestamp)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := r.writeBinary(f); err != nil {
			return err
		}
	}
	return nil
}

func (r *Room) activeConn() (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.joined || r.conn == nil {
		return nil, ErrNotJoined
	}
	return r.conn, nil
}

func (r *Room) writeJSON(msg controlMessage) error {
	conn, err := r.activeConn()
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (r *Room) writeBinary(msg []byte) error {
	conn, err := r.activeConn()
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (r *Room) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			r.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (r *Room) readLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer r.teardown(conn)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				logrus.WithFields(logrus.Fields{
					"function": "Room.readLoop",
					"error":    err.Error(),
				}).Warn("Bridge connection lost")
			}
			return
		}

		switch mt {
		case websocket.TextMessage:
			r.handleControl(data)
		case websocket.BinaryMessage:
			r.handleBinary(data)
		}
	}
}

func (r *Room) handleControl(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Room.handleControl",
			"error":    err.Error(),
		}).Warn("Ignoring malformed control message")
		return
	}

	switch msg.Type {
	case msgParticipantJoined:
		p := newParticipant(msg.ParticipantID, msg.DisplayName)
		r.mu.Lock()
		r.participants[p.id] = p
		handlers := append([]room.EventHandler(nil), r.handlers...)
		r.mu.Unlock()
		for _, h := range handlers {
			h.OnParticipantJoined(p)
		}

	case msgParticipantLeft:
		r.mu.Lock()
		p, ok := r.participants[msg.ParticipantID]
		delete(r.participants, msg.ParticipantID)
		for ssrc, s := range r.streams {
			if ok && s.owner == p {
				delete(r.streams, ssrc)
			}
		}
		handlers := append([]room.EventHandler(nil), r.handlers...)
		r.mu.Unlock()
		if !ok {
			return
		}
		p.closeStreams()
		for _, h := range handlers {
			h.OnParticipantLeft(p)
		}

	case msgStreamEnabled:
		r.mu.Lock()
		p, ok := r.participants[msg.ParticipantID]
		r.mu.Unlock()
		if !ok {
			return
		}
		s, err := newStream(p, msg)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Room.handleControl",
				"stream_id": msg.StreamID,
				"error":     err.Error(),
			}).Warn("Ignoring unsupported stream")
			return
		}
		r.mu.Lock()
		r.streams[msg.SSRC] = s
		r.mu.Unlock()
		p.enable(s)

	case msgStreamDisabled:
		r.mu.Lock()
		p, ok := r.participants[msg.ParticipantID]
		var target *stream
		for ssrc, s := range r.streams {
			if s.id == msg.StreamID {
				target = s
				delete(r.streams, ssrc)
			}
		}
		r.mu.Unlock()
		if ok && target != nil {
			p.disable(target)
		}

	case msgError:
		logrus.WithFields(logrus.Fields{
			"function": "Room.handleControl",
			"message":  msg.Message,
		}).Warn("Bridge reported an error")
	}
}

func (r *Room) handleBinary(data []byte) {
	if len(data) < 2 || data[0] != frameMedia {
		return
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(data[1:]); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Room.handleBinary",
			"error":    err.Error(),
		}).Debug("Dropping malformed RTP packet")
		return
	}

	r.mu.RLock()
	s, ok := r.streams[pkt.SSRC]
	r.mu.RUnlock()
	if !ok {
		return
	}
	s.handlePacket(&pkt)
}
