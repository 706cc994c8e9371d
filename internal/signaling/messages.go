package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"

	"github.com/callwave/signaling-relay/internal/registry"
)

type eventType string

const (
	eventJoinRoom     eventType = "join_room"
	eventLeaveRoom    eventType = "leave_room"
	eventSendMessage  eventType = "send_message"
	eventWebRTCOffer  eventType = "webrtc_offer"
	eventWebRTCAnswer eventType = "webrtc_answer"
	eventICECandidate eventType = "ice_candidate"
)

type sdp struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (s sdp) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

type candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func (c candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// clientEvent is the inbound wire format. Exactly one payload group must be
// present, matching the event type; unknown fields and trailing data are
// rejected.
type clientEvent struct {
	Type eventType `json:"type"`
	Room string    `json:"room,omitempty"`

	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	Offer     *sdp       `json:"offer,omitempty"`
	Answer    *sdp       `json:"answer,omitempty"`
	Candidate *candidate `json:"candidate,omitempty"`
}

func parseClientEvent(data []byte) (clientEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ev clientEvent
	if err := dec.Decode(&ev); err != nil {
		return clientEvent{}, err
	}
	if err := ev.validate(); err != nil {
		return clientEvent{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return clientEvent{}, fmt.Errorf("unexpected trailing data")
	}
	return ev, nil
}

func (ev clientEvent) validate() error {
	if ev.Room == "" {
		return fmt.Errorf("%s event missing room", ev.Type)
	}
	switch ev.Type {
	case eventJoinRoom, eventLeaveRoom:
		if ev.Message != "" || ev.Timestamp != 0 || ev.Offer != nil || ev.Answer != nil || ev.Candidate != nil {
			return fmt.Errorf("%s event has unexpected fields", ev.Type)
		}
	case eventSendMessage:
		if ev.Message == "" {
			return fmt.Errorf("send_message event missing message")
		}
		if ev.Offer != nil || ev.Answer != nil || ev.Candidate != nil {
			return fmt.Errorf("send_message event has unexpected fields")
		}
	case eventWebRTCOffer:
		if ev.Offer == nil {
			return fmt.Errorf("webrtc_offer event missing offer")
		}
		desc, err := ev.Offer.ToPion()
		if err != nil {
			return fmt.Errorf("webrtc_offer event: %w", err)
		}
		if desc.Type != webrtc.SDPTypeOffer {
			return fmt.Errorf("webrtc_offer event has offer.type=%q", ev.Offer.Type)
		}
		if desc.SDP == "" {
			return fmt.Errorf("webrtc_offer event has empty sdp")
		}
		if ev.Message != "" || ev.Timestamp != 0 || ev.Answer != nil || ev.Candidate != nil {
			return fmt.Errorf("webrtc_offer event has unexpected fields")
		}
	case eventWebRTCAnswer:
		if ev.Answer == nil {
			return fmt.Errorf("webrtc_answer event missing answer")
		}
		desc, err := ev.Answer.ToPion()
		if err != nil {
			return fmt.Errorf("webrtc_answer event: %w", err)
		}
		if desc.Type != webrtc.SDPTypeAnswer {
			return fmt.Errorf("webrtc_answer event has answer.type=%q", ev.Answer.Type)
		}
		if desc.SDP == "" {
			return fmt.Errorf("webrtc_answer event has empty sdp")
		}
		if ev.Message != "" || ev.Timestamp != 0 || ev.Offer != nil || ev.Candidate != nil {
			return fmt.Errorf("webrtc_answer event has unexpected fields")
		}
	case eventICECandidate:
		if ev.Candidate == nil {
			return fmt.Errorf("ice_candidate event missing candidate")
		}
		if init := ev.Candidate.ToPion(); init.Candidate == "" {
			return fmt.Errorf("ice_candidate event has empty candidate")
		}
		if ev.Message != "" || ev.Timestamp != 0 || ev.Offer != nil || ev.Answer != nil {
			return fmt.Errorf("ice_candidate event has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported event type %q", ev.Type)
	}
	return nil
}

// Outbound events. One struct per event so each payload shape is fixed.

type userJoinedEvent struct {
	Type     string   `json:"type"`
	Username string   `json:"username"`
	Users    []string `json:"users"`
}

type userLeftEvent struct {
	Type     string   `json:"type"`
	Username string   `json:"username"`
	Users    []string `json:"users"`
}

type messageHistoryEvent struct {
	Type     string                 `json:"type"`
	Messages []registry.ChatMessage `json:"messages"`
}

type receiveMessageEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type offerRelayEvent struct {
	Type     string `json:"type"`
	Offer    sdp    `json:"offer"`
	Username string `json:"username"`
}

type answerRelayEvent struct {
	Type     string `json:"type"`
	Answer   sdp    `json:"answer"`
	Username string `json:"username"`
}

type candidateRelayEvent struct {
	Type      string    `json:"type"`
	Candidate candidate `json:"candidate"`
	Username  string    `json:"username"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeBadMessage   = "bad_message"
	errCodeRoomMismatch = "room_mismatch"
	errCodeUnknownRoom  = "unknown_room"
)

func marshalEvent(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// All outbound event types marshal without error.
		panic(err)
	}
	return b
}
