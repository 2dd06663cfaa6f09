package ua

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// MediaEndpoint is the connection address/port/codec list this stack
// extracts from an SDP body, the one detail a caller usually needs out of
// an otherwise opaque body. SPEC_FULL.md's DOMAIN STACK calls for a
// typed accessor layered above the pass-through body rather than full
// SDP negotiation (out of scope, per spec.md §1's Non-goals).
type MediaEndpoint struct {
	Address string
	Port    int
	Codecs  []string
}

// ParseSDP extracts the first audio media section's endpoint from body.
// Every other body (non-SDP content types, SDP with no audio section) is
// passed through by callers unexamined — this accessor exists only to
// answer "where do I send RTP," not to model full SDP semantics.
// Grounded on
// _examples/sebacius-switchboard/services/rtpmanager/sdp/builder.go's use
// of github.com/pion/sdp/v3 to build an SDP body; here we go the other
// direction and read one.
func ParseSDP(body []byte) (*MediaEndpoint, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("ua: parse SDP: %w", err)
	}

	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media != "audio" {
			continue
		}
		ep := &MediaEndpoint{
			Address: connectionAddress(desc, media),
			Port:    media.MediaName.Port.Value,
			Codecs:  append([]string(nil), media.MediaName.Formats...),
		}
		return ep, nil
	}
	return nil, fmt.Errorf("ua: parse SDP: no audio media section")
}

func connectionAddress(desc sdp.SessionDescription, media *sdp.MediaDescription) string {
	if media.ConnectionInformation != nil && media.ConnectionInformation.Address != nil {
		return media.ConnectionInformation.Address.Address
	}
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		return desc.ConnectionInformation.Address.Address
	}
	return ""
}

// BuildOfferSDP renders a minimal single-audio-stream offer/answer body
// around localAddr/localPort advertising codecs (payload type numbers as
// SDP format strings, e.g. "0" for PCMU). Grounded on the same builder.go
// file's createResponseSDP/GetCodecAttributes, simplified to the
// generic-offer case (no rtcp-mux, no fmtp).
func BuildOfferSDP(username, localAddr string, localPort int, codecs []string) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       username,
			SessionID:      1,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localAddr,
		},
		SessionName: "sipstack",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localAddr},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: localPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: codecs,
				},
				Attributes: rtpmapAttributes(codecs),
			},
		},
	}

	body, err := desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("ua: build SDP offer: %w", err)
	}
	return body, nil
}

var rtpmapByPayloadType = map[string]string{
	"0":  "PCMU/8000",
	"8":  "PCMA/8000",
	"18": "G729/8000",
	"96": "opus/48000/2",
}

func rtpmapAttributes(codecs []string) []sdp.Attribute {
	var attrs []sdp.Attribute
	for _, c := range codecs {
		if rtpmap, ok := rtpmapByPayloadType[c]; ok {
			attrs = append(attrs, sdp.Attribute{Key: "rtpmap", Value: c + " " + rtpmap})
		}
	}
	attrs = append(attrs, sdp.Attribute{Key: "sendrecv"})
	return attrs
}
