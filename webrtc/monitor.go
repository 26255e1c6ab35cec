// Package webrtc provides a headless WebRTC monitor for live voice sessions.
// It attaches to a session endpoint as a receive-only peer: protocol events
// arrive over the data channel and assistant audio over an RTP track. Useful
// for supervision dashboards and smoke checks without a WebSocket session.
package webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	pion "github.com/pion/webrtc/v3"
)

// MonitorOptions configures one monitor attachment.
type MonitorOptions struct {
	// Endpoint is the HTTP SDP-exchange endpoint of the realtime service.
	Endpoint string

	// Model selects the deployment to monitor.
	Model string

	// Credential is the ephemeral bearer token from negotiation.
	Credential string

	// IceServers overrides the default ICE configuration.
	IceServers []pion.ICEServer

	// OnEvent receives raw protocol events from the data channel.
	OnEvent func(msg []byte)

	// OnAudioRTP is called periodically with the cumulative count of audio
	// RTP packets received.
	OnAudioRTP func(pkts uint64)
}

// Monitor attaches to the session and blocks until ctx is cancelled or the
// SDP exchange fails.
func Monitor(ctx context.Context, opt MonitorOptions) error {
	if opt.Endpoint == "" || opt.Model == "" || opt.Credential == "" {
		return errors.New("endpoint, model and credential are required")
	}
	cfg := pion.Configuration{}
	if len(opt.IceServers) > 0 {
		cfg.ICEServers = opt.IceServers
	}
	pc, err := pion.NewPeerConnection(cfg)
	if err != nil {
		return err
	}
	defer pc.Close()

	dc, err := pc.CreateDataChannel("realtime-channel", nil)
	if err != nil {
		return err
	}
	if opt.OnEvent != nil {
		dc.OnMessage(func(m pion.DataChannelMessage) { opt.OnEvent(m.Data) })
	}
	_, err = pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return err
	}

	if opt.OnAudioRTP != nil {
		pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
			var pkts uint64
			buf := make([]byte, 1500)
			for {
				_, _, e := track.Read(buf)
				if e != nil {
					return
				}
				pkts++
				if pkts%200 == 0 {
					opt.OnAudioRTP(pkts)
				}
			}
		})
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}

	answer, err := exchangeSDP(ctx, opt, offer.SDP)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// exchangeSDP posts the local offer and returns the remote answer.
func exchangeSDP(ctx context.Context, opt MonitorOptions, sdp string) (pion.SessionDescription, error) {
	url := fmt.Sprintf("%s?model=%s", opt.Endpoint, opt.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(sdp))
	if err != nil {
		return pion.SessionDescription{}, err
	}
	req.Header.Set("Authorization", "Bearer "+opt.Credential)
	req.Header.Set("Content-Type", "application/sdp")

	httpClient := &http.Client{Timeout: 20 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return pion.SessionDescription{}, err
	}
	if resp.StatusCode/100 != 2 {
		return pion.SessionDescription{}, fmt.Errorf("SDP exchange failed: %d: %s", resp.StatusCode, string(b))
	}
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: string(b)}, nil
}
