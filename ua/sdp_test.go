package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOfferSDPThenParseSDPRoundTrips(t *testing.T) {
	body, err := BuildOfferSDP("sipstack", "192.0.2.10", 30000, []string{"0", "8", "96"})
	require.NoError(t, err)
	require.NotEmpty(t, body)

	ep, err := ParseSDP(body)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ep.Address)
	assert.Equal(t, 30000, ep.Port)
	assert.Equal(t, []string{"0", "8", "96"}, ep.Codecs)
}

func TestParseSDPRejectsBodyWithoutAudioSection(t *testing.T) {
	body := "v=0\r\n" +
		"o=- 1 1 IN IP4 192.0.2.10\r\n" +
		"s=sipstack\r\n" +
		"c=IN IP4 192.0.2.10\r\n" +
		"t=0 0\r\n" +
		"m=video 30002 RTP/AVP 97\r\n"

	_, err := ParseSDP([]byte(body))
	assert.Error(t, err)
}

func TestParseSDPRejectsMalformedBody(t *testing.T) {
	_, err := ParseSDP([]byte("not an sdp body"))
	assert.Error(t, err)
}

func TestParseSDPFallsBackToSessionLevelConnectionInfo(t *testing.T) {
	body := "v=0\r\n" +
		"o=- 1 1 IN IP4 192.0.2.10\r\n" +
		"s=sipstack\r\n" +
		"c=IN IP4 192.0.2.10\r\n" +
		"t=0 0\r\n" +
		"m=audio 30000 RTP/AVP 0\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n"

	ep, err := ParseSDP([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", ep.Address)
	assert.Equal(t, 30000, ep.Port)
}
