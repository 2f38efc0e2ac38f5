package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/avatarrelay/room"
	"github.com/sirupsen/logrus"
)

// ErrNotJoined is returned by Send before Join succeeds or after Leave.
var ErrNotJoined = errors.New("sim: room not joined")

// Config controls simulated failures and automatic backend behaviour.
type Config struct {
	// FailJoins makes the first N Join calls fail with JoinError.
	FailJoins int
	JoinError error

	// SendError, when set, fails every Send.
	SendError error

	// AutoJoinName, when set, adds a remote participant with this display
	// name right after a successful Join.
	AutoJoinName string
}

// DeliveryRecord is one Send call made against the room.
type DeliveryRecord struct {
	Data        []byte
	Reliability room.Reliability
	Timestamp   int64
	Success     bool
	Error       error
}

// Room is an in-memory room.Room.
type Room struct {
	mu           sync.RWMutex
	config       Config
	joined       bool
	joinCalls    []room.JoinConfig
	handlers     []room.EventHandler
	participants map[string]*Participant
	deliveryLog  []DeliveryRecord
}

// NewRoom creates an empty simulated room. A nil config is treated as the
// zero Config.
func NewRoom(config *Config) *Room {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	logrus.WithFields(logrus.Fields{
		"function":       "NewRoom",
		"fail_joins":     cfg.FailJoins,
		"auto_join_name": cfg.AutoJoinName,
	}).Debug("Creating simulated room")

	return &Room{
		config:       cfg,
		participants: make(map[string]*Participant),
	}
}

// Join implements room.Room.
func (r *Room) Join(ctx context.Context, cfg room.JoinConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.joinCalls = append(r.joinCalls, cfg)
	if r.config.FailJoins > 0 {
		r.config.FailJoins--
		err := r.config.JoinError
		if err == nil {
			err = fmt.Errorf("sim: join %s rejected", cfg.MeetingID)
		}
		r.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":   "Room.Join",
			"meeting_id": cfg.MeetingID,
			"error":      err.Error(),
		}).Warn("Simulated join failure")
		return err
	}
	r.joined = true
	autoJoin := r.config.AutoJoinName
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Room.Join",
		"meeting_id": cfg.MeetingID,
		"name":       cfg.Name,
	}).Info("Joined simulated room")

	if autoJoin != "" {
		go r.AddParticipant(uuid.NewString(), autoJoin)
	}
	return nil
}

// Leave implements room.Room. Remote participants leave with the local one.
func (r *Room) Leave() error {
	r.mu.Lock()
	if !r.joined {
		r.mu.Unlock()
		return nil
	}
	r.joined = false
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.RemoveParticipant(id)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Room.Leave",
	}).Info("Left simulated room")
	return nil
}

// AddEventListener implements room.Room.
func (r *Room) AddEventListener(h room.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Send implements room.Sender and records the delivery.
func (r *Room) Send(ctx context.Context, data []byte, opts room.SendOptions) error {
	record := DeliveryRecord{
		Data:        append([]byte(nil), data...),
		Reliability: opts.Reliability,
		Timestamp:   time.Now().UnixNano(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		record.Error = ctx.Err()
	case !r.joined:
		record.Error = ErrNotJoined
	case r.config.SendError != nil:
		record.Error = r.config.SendError
	default:
		record.Success = true
	}
	r.deliveryLog = append(r.deliveryLog, record)

	logrus.WithFields(logrus.Fields{
		"function":    "Room.Send",
		"size":        len(data),
		"reliability": opts.Reliability.String(),
		"success":     record.Success,
	}).Trace("Simulated data send")

	return record.Error
}

// AddParticipant adds a remote participant and notifies listeners.
func (r *Room) AddParticipant(id, displayName string) *Participant {
	p := newParticipant(id, displayName)

	r.mu.Lock()
	r.participants[id] = p
	handlers := append([]room.EventHandler(nil), r.handlers...)
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "Room.AddParticipant",
		"participant":  id,
		"display_name": displayName,
	}).Info("Participant joined simulated room")

	for _, h := range handlers {
		h.OnParticipantJoined(p)
	}
	return p
}

// RemoveParticipant closes the participant's streams and notifies listeners.
func (r *Room) RemoveParticipant(id string) {
	r.mu.Lock()
	p, ok := r.participants[id]
	delete(r.participants, id)
	handlers := append([]room.EventHandler(nil), r.handlers...)
	r.mu.Unlock()

	if !ok {
		return
	}
	p.closeStreams()
	for _, h := range handlers {
		h.OnParticipantLeft(p)
	}
}

// Participant returns the participant with the given display name, if any.
func (r *Room) Participant(displayName string) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if p.DisplayName() == displayName {
			return p, true
		}
	}
	return nil, false
}

// Joined reports whether the local participant is in the room.
func (r *Room) Joined() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.joined
}

// JoinCalls returns every JoinConfig passed to Join.
func (r *Room) JoinCalls() []room.JoinConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]room.JoinConfig(nil), r.joinCalls...)
}

// GetDeliveryLog returns a copy of every data message sent to the room.
func (r *Room) GetDeliveryLog() []DeliveryRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := make([]DeliveryRecord, len(r.deliveryLog))
	copy(log, r.deliveryLog)
	return log
}

// ClearDeliveryLog forgets every recorded data message.
func (r *Room) ClearDeliveryLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveryLog = nil
}

// GetStats summarizes the room state and its delivery log.
func (r *Room) GetStats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	successCount := 0
	failedCount := 0
	bytesSent := 0
	for _, record := range r.deliveryLog {
		if record.Success {
			successCount++
			bytesSent += len(record.Data)
		} else {
			failedCount++
		}
	}

	return map[string]interface{}{
		"joined":                r.joined,
		"join_calls":            len(r.joinCalls),
		"participants":          len(r.participants),
		"total_deliveries":      len(r.deliveryLog),
		"successful_deliveries": successCount,
		"failed_deliveries":     failedCount,
		"bytes_sent":            bytesSent,
	}
}
