package emailsvc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/wellbeing/core"
	appfs "github.com/trezcool/wellbeing/fs"
	logsvc "github.com/trezcool/wellbeing/services/logger"
)

func TestMain(m *testing.M) {
	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true); err != nil {
		panic(err)
	}
	retryDelay = time.Millisecond
	goleak.VerifyTestMain(m,
		goleak.IgnoreCurrent(), // rollbar's async transport
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newLogger(t *testing.T) core.Logger {
	logger := logsvc.NewRollbarLogger(zaptest.NewLogger(t), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

func invitation() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Awe", Address: "awe@test.com"}},
		Subject:      "You are invited",
		TemplateName: "invitation",
		TemplateData: map[string]interface{}{
			"OrgName":   "Acme",
			"Inviter":   "Boss",
			"Role":      "manager",
			"URL":       "http://localhost:3000/invitations/abc",
			"ExpiresAt": "Jan 2, 2027",
		},
	}
}

func TestConsoleServiceMock(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, newLogger(t))

	svc.SendMessages(
		invitation(),
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "x@test.com"}}, Subject: "plain", BodyStr: "hello"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "You are invited", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Acme")
	assert.Contains(t, sent[0].HTMLContent, "http://localhost:3000/invitations/abc")
	assert.Equal(t, "hello", sent[1].TextContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleService(conf, newLogger(t))
	var out strings.Builder
	svc.out = &out

	msg := invitation()
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "report.csv", "text/csv"))
	svc.SendMessages(msg)
	svc.Wait()

	body := out.String()
	assert.Contains(t, body, "Subject: [Wellbeing] You are invited")
	assert.Contains(t, body, `To: "Awe" <awe@test.com>`)
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "filename=report.csv")
	assert.Contains(t, body, "text/html")
}

func TestSendgridService_send(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantAttempts int32
		wantErr      bool
	}{
		{name: "accepted", statuses: []int{http.StatusAccepted}, wantAttempts: 1},
		{name: "retries server errors", statuses: []int{http.StatusBadGateway, http.StatusInternalServerError, http.StatusAccepted}, wantAttempts: 3},
		{name: "gives up after 3 attempts", statuses: []int{500, 500, 500, 500}, wantAttempts: 3, wantErr: true},
		{name: "client errors are final", statuses: []int{http.StatusBadRequest, http.StatusAccepted}, wantAttempts: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&attempts, 1)
				assert.Equal(t, endpoint, r.URL.Path)
				assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
				body, _ := io.ReadAll(r.Body)
				assert.Contains(t, string(body), "[Wellbeing] You are invited")
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer srv.Close()

			oldHost := host
			host = srv.URL
			defer func() { host = oldHost }()

			conf := core.NewTestConfig()
			conf.SendgridApiKey = "key"
			svc := NewSendgridService(conf, newLogger(t))

			msg := invitation()
			require.NoError(t, msg.Render(conf))
			err := svc.send(*msg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, atomic.LoadInt32(&attempts))
		})
	}
}

func TestSendgridService_SendMessages(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	oldHost := host
	host = srv.URL
	defer func() { host = oldHost }()

	svc := NewSendgridService(core.NewTestConfig(), newLogger(t))
	svc.SendMessages(invitation(), invitation(), &core.EmailMessage{Subject: "nobody", BodyStr: "hi"})
	svc.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}
