package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sipstack/sipstack/sip"
)

func testProvisionalResponse(rseq, status string) *sip.Response {
	req := testInviteRequest()
	res := sip.NewResponseFromRequest(req, sip.StatusRinging, "Ringing", nil)
	if rseq != "" {
		res.AppendHeader(sip.NewHeader("RSeq", rseq))
	}
	if status != "" {
		res.AppendHeader(sip.NewHeader("Require", status))
	}
	return res
}

func TestHas100rel(t *testing.T) {
	assert.True(t, has100rel("100rel"))
	assert.True(t, has100rel("timer, 100rel"))
	assert.True(t, has100rel(" 100rel "))
	assert.False(t, has100rel("timer"))
	assert.False(t, has100rel(""))
}

func TestIsReliableRequiresRequireOrRSeq(t *testing.T) {
	withRequire := testProvisionalResponse("", "100rel")
	assert.True(t, isReliable(withRequire))

	withRSeq := testProvisionalResponse("1", "")
	assert.True(t, isReliable(withRSeq))

	plain := testProvisionalResponse("", "")
	assert.False(t, isReliable(plain))
}

func TestParseRSeq(t *testing.T) {
	n, ok := parseRSeq("42")
	assert.True(t, ok)
	assert.Equal(t, uint32(42), n)

	_, ok = parseRSeq("not-a-number")
	assert.False(t, ok)

	_, ok = parseRSeq("-1")
	assert.False(t, ok)
}

func TestReliableProvisionalObserveRejectsNonIncreasing(t *testing.T) {
	var rp reliableProvisional
	assert.True(t, rp.observe(1))
	assert.True(t, rp.observe(2))
	assert.False(t, rp.observe(2))
	assert.False(t, rp.observe(1))
	assert.True(t, rp.observe(10))
}
