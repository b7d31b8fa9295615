package filterlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/qveil/contentfilter/internal/action"
	"github.com/qveil/contentfilter/internal/filterlog"
	"github.com/qveil/contentfilter/internal/httpreq"
	"github.com/stretchr/testify/assert"
)

type fakeMatchedRule struct {
	id     uint32
	log    bool
	notify bool
}

func (r fakeMatchedRule) RuleID() (id uint32)       { return r.id }
func (r fakeMatchedRule) ShouldLog() (ok bool)      { return r.log }
func (r fakeMatchedRule) ShouldNotify() (ok bool)   { return r.notify }
func (r fakeMatchedRule) Mark() (mark, mask uint32) { return 0, 0 }
func (r fakeMatchedRule) HasMark() (ok bool)        { return false }

func TestLogger_LogRequest_NoMatch(t *testing.T) {
	l := filterlog.New(&filterlog.Config{}, nil)

	req := &httpreq.Request{URL: "http://example.com/", StartTime: time.Now()}
	l.LogRequest(context.Background(), req, action.Nomatch)
}

func TestLogger_LogRequest_NeitherLogNorNotify(t *testing.T) {
	l := filterlog.New(&filterlog.Config{}, nil)

	req := &httpreq.Request{URL: "http://example.com/", StartTime: time.Now()}
	req.SetRuleMatched(fakeMatchedRule{id: 1})

	l.LogRequest(context.Background(), req, action.Reject)
}

func TestLogger_LogRequest_Logged(t *testing.T) {
	l := filterlog.New(&filterlog.Config{}, nil)

	req := &httpreq.Request{
		URL:             "http://example.com/",
		StartTime:       time.Now(),
		ContentLength:   1024,
		ContentReceived: 512,
	}
	req.SetRuleMatched(fakeMatchedRule{id: 7, log: true})

	l.LogRequest(context.Background(), req, action.Reject)

	assert.True(t, req.RuleMatched().ShouldLog())
}
