package mailservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sushihentaime/teamblog/internal/blogservice"
	"github.com/sushihentaime/teamblog/internal/common"
	"github.com/sushihentaime/teamblog/internal/userservice"
)

func newTestMailService(t *testing.T, mb common.MessageConsumer, m Mailer, logger MailLogger) *MailService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MailService{
		mb:     mb,
		m:      m,
		logger: logger,
		appURL: "http://localhost:4000",
		retry:  retryPolicy{maxRetries: 3},
		ctx:    ctx,
		cancel: cancel,
	}
	t.Cleanup(s.Close)
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustJSON(t *testing.T, v any) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSendActivationEmail(t *testing.T) {
	mockMC := &MockMessageConsumer{bodies: [][]byte{
		mustJSON(t, userservice.UserCreatedMessage{Email: "test@example.com", Token: "testtoken"}),
	}}
	mockMC.On("Consume", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue).Return(nil)

	mockMailer := NewMockMailer()
	mockLogger := new(MockLogger)
	mockLogger.On("Info", mock.Anything, mock.Anything).Return()

	s := newTestMailService(t, mockMC, mockMailer, mockLogger)
	s.SendActivationEmail()

	require.Eventually(t, func() bool { return len(mockMailer.Sent()) == 1 }, time.Second, 10*time.Millisecond)

	sent := mockMailer.Sent()[0]
	assert.Equal(t, "test@example.com", sent.Recipient)
	assert.Equal(t, activationTemplate, sent.Template)
	assert.Equal(t, activationEmail{ActivationToken: "testtoken", ActivationURL: "http://localhost:4000/v1/users/activate"}, sent.Data)

	mockMC.AssertExpectations(t)
	require.Eventually(t, func() bool {
		return slices.Contains(mockLogger.Infos(), "activation email sent")
	}, time.Second, 10*time.Millisecond)
}

func TestSendPostNotifications(t *testing.T) {
	msg := blogservice.PostCreatedMessage{
		BlogID:     "c4f2a8e1-7d3b-4e9a-a2c5-0f6d1b8e4a10",
		BlogTitle:  "Roadmap",
		PostID:     "7e2d9b4c-1a5f-4c83-b6e0-3d8f2a7c9b11",
		PostTitle:  "Q3 goals",
		Recipients: []string{"bob@example.com", "broken@example.com", "carol@example.com"},
	}

	mockMC := &MockMessageConsumer{bodies: [][]byte{[]byte("not json"), mustJSON(t, msg)}}
	mockMC.On("Consume", common.PostCreatedKey, common.BlogExchange, common.PostCreatedQueue).Return(nil)

	mockMailer := NewMockMailer("broken@example.com")

	s := newTestMailService(t, mockMC, mockMailer, discardLogger())
	s.SendPostNotifications()

	require.Eventually(t, func() bool { return len(mockMailer.Sent()) == 2 }, time.Second, 10*time.Millisecond)

	sent := mockMailer.Sent()
	assert.Equal(t, "bob@example.com", sent[0].Recipient)
	assert.Equal(t, "carol@example.com", sent[1].Recipient)

	for _, m := range sent {
		assert.Equal(t, newPostTemplate, m.Template)
		assert.Equal(t, newPostEmail{
			BlogTitle: "Roadmap",
			PostTitle: "Q3 goals",
			PostURL:   "http://localhost:4000/v1/posts/7e2d9b4c-1a5f-4c83-b6e0-3d8f2a7c9b11",
		}, m.Data)
	}

	assert.Equal(t, 3, mockMailer.Tries("broken@example.com"))
	assert.Equal(t, 1, mockMailer.Tries("bob@example.com"))
}

func TestConsumeError(t *testing.T) {
	mockMC := &MockMessageConsumer{}
	mockMC.On("Consume", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue).Return(errors.New("channel closed"))

	mockLogger := new(MockLogger)
	mockLogger.On("Error", "could not consume message", mock.Anything).Return()

	s := newTestMailService(t, mockMC, NewMockMailer(), mockLogger)
	s.SendActivationEmail()

	mockMC.AssertExpectations(t)
	mockLogger.AssertExpectations(t)
}

func TestSendWithRetryStopsOnClose(t *testing.T) {
	mockMailer := NewMockMailer("test@example.com")
	s := newTestMailService(t, &MockMessageConsumer{}, mockMailer, discardLogger())
	s.retry = retryPolicy{maxRetries: 5, baseDelay: time.Hour}

	s.Close()

	err := s.sendWithRetry("test@example.com", nil, activationTemplate)
	assert.Error(t, err)
	assert.Equal(t, 1, mockMailer.Tries("test@example.com"))
}
