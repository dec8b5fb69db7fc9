package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/msvee3/Interview-prep/internal/voice"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ParseICEServers decodes a JSON list of ICE servers, falling back to a public STUN server.
func ParseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

// Peer is one browser audio connection. The remote microphone is exposed as
// an AudioSource and spoken questions are sent back through a paced Opus track.
// Text arriving on the "control" data channel is passed to the control callback.
type Peer struct {
	ID string

	pc        *webrtc.PeerConnection
	writer    *OpusPacedWriter
	mic       *RemoteMic
	onControl func(cmd string)
	closeOnce sync.Once
	done      chan struct{}
}

// NewPeer answers offer and starts the media handlers. ICE gathering is
// completed before the answer is returned, so no trickle signaling is needed.
func NewPeer(ctx context.Context, offer SessionDescription, iceServers []webrtc.ICEServer, onControl func(cmd string)) (*Peer, SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return nil, SessionDescription{}, errors.New("rtc: invalid offer")
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, SessionDescription{}, err
	}
	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate48k, Channels: 1},
		"interviewer-audio", "interviewer",
	)
	if err != nil {
		_ = pc.Close()
		return nil, SessionDescription{}, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return nil, SessionDescription{}, err
	}
	writer, err := NewOpusPacedWriter(outTrack)
	if err != nil {
		_ = pc.Close()
		return nil, SessionDescription{}, err
	}

	p := &Peer{
		ID:        uuid.NewString(),
		pc:        pc,
		writer:    writer,
		mic:       &RemoteMic{},
		onControl: onControl,
		done:      make(chan struct{}),
	}
	p.attachHandlers()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		p.Close()
		return nil, SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		p.Close()
		return nil, SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		p.Close()
		return nil, SessionDescription{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		p.Close()
		return nil, SessionDescription{}, ctx.Err()
	}
	local := pc.LocalDescription()
	if local == nil {
		p.Close()
		return nil, SessionDescription{}, errors.New("rtc: no local description")
	}
	return p, SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

func (p *Peer) attachHandlers() {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] peer connection state: %s", p.ID, state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			p.Close()
		}
	})
	p.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("[%s] ICE state: %s", p.ID, state.String())
	})
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Printf("[%s] control channel opened", p.ID)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			if cmd != "" && p.onControl != nil {
				p.onControl(cmd)
			}
		})
	})
	p.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] remote audio track received: codec=%s", p.ID, remote.Codec().MimeType)
		dec, err := opus.NewDecoder(16000, 1)
		if err != nil {
			log.Printf("[%s] opus decoder error: %v", p.ID, err)
			return
		}
		go p.readMic(remote, dec)
	})
}

// readMic decodes the browser's Opus stream straight to 16kHz for the recognizer.
func (p *Peer) readMic(remote *webrtc.TrackRemote, dec *opus.Decoder) {
	samples := make([]int16, 1920)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			select {
			case <-p.done:
			default:
				log.Printf("[%s] RTP read error: %v", p.ID, err)
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, samples)
		if err != nil {
			log.Printf("[%s] opus decode error: %v", p.ID, err)
			continue
		}
		p.mic.feed(samples[:n])
	}
}

// Source is the remote microphone.
func (p *Peer) Source() voice.AudioSource { return p.mic }

// Sink is the outgoing audio track.
func (p *Peer) Sink() voice.AudioSink { return p.writer }

// Done is closed once the peer is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close releases the peer connection. It is safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mic.Stop()
		p.writer.Close()
		go func() {
			// Close blocks on the connection state callbacks that call back here.
			if err := p.pc.Close(); err != nil {
				log.Printf("[%s] peer close: %v", p.ID, err)
			}
		}()
	})
}
