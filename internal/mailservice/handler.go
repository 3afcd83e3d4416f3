package mailservice

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sushihentaime/teamblog/internal/blogservice"
	"github.com/sushihentaime/teamblog/internal/common"
	"github.com/sushihentaime/teamblog/internal/userservice"
	"golang.org/x/exp/rand"
)

const (
	activationTemplate = "activation_email.html"
	newPostTemplate    = "new_post_email.html"
)

// NewMailService returns a service that turns broker events into emails.
// appURL is the public base URL used for links in the messages.
func NewMailService(mb common.MessageConsumer, host, username, password, sender string, port int, appURL string, logger *slog.Logger) *MailService {
	ctx, cancel := context.WithCancel(context.Background())
	return &MailService{
		mb:     mb,
		m:      NewMailer(host, port, username, password, sender, NewTemplate()),
		logger: logger,
		appURL: strings.TrimRight(appURL, "/"),
		retry:  retryPolicy{maxRetries: 5, baseDelay: 500 * time.Millisecond},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SendActivationEmail starts a consumer for user.created events.
func (s *MailService) SendActivationEmail() {
	s.consume("SendActivationEmail", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue, s.handleUserCreated)
}

// SendPostNotifications starts a consumer for post.created events. Every
// recipient gets a separate email; one failing address does not stop the rest.
func (s *MailService) SendPostNotifications() {
	s.consume("SendPostNotifications", common.PostCreatedKey, common.BlogExchange, common.PostCreatedQueue, s.handlePostCreated)
}

func (s *MailService) consume(name string, key common.BindingKey, exchange common.Exchange, queue common.Queue, handle func(body []byte)) {
	msgs, err := s.mb.Consume(key, exchange, queue)
	if err != nil {
		s.logger.Error("could not consume message", slog.String("error", err.Error()))
		return
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				handle(msg.Body)
				ack(msg)

			case <-s.ctx.Done():
				s.logger.Info("stopping consumer due to context cancellation", slog.String("consumer", name))
				return
			}
		}
	}()
}

// ack acknowledges msg. Deliveries built in tests carry no acknowledger.
func ack(msg amqp.Delivery) {
	if msg.Acknowledger != nil {
		msg.Ack(false)
	}
}

func (s *MailService) handleUserCreated(body []byte) {
	var data userservice.UserCreatedMessage
	if err := json.Unmarshal(body, &data); err != nil {
		s.logger.Error("could not unmarshal message", slog.String("error", err.Error()))
		return
	}

	payload := activationEmail{
		ActivationToken: data.Token,
		ActivationURL:   s.appURL + "/v1/users/activate",
	}

	if err := s.sendWithRetry(data.Email, payload, activationTemplate); err != nil {
		s.logger.Error("could not send activation email", slog.String("email", data.Email))
		return
	}

	s.logger.Info("activation email sent", slog.String("email", data.Email))
}

func (s *MailService) handlePostCreated(body []byte) {
	var data blogservice.PostCreatedMessage
	if err := json.Unmarshal(body, &data); err != nil {
		s.logger.Error("could not unmarshal message", slog.String("error", err.Error()))
		return
	}

	payload := newPostEmail{
		BlogTitle: data.BlogTitle,
		PostTitle: data.PostTitle,
		PostURL:   s.appURL + "/v1/posts/" + data.PostID,
	}

	for _, email := range data.Recipients {
		if err := s.sendWithRetry(email, payload, newPostTemplate); err != nil {
			s.logger.Error("could not send new post email", slog.String("email", email), slog.String("post_id", data.PostID))
			continue
		}
		s.logger.Info("new post email sent", slog.String("email", email), slog.String("post_id", data.PostID))
	}
}

// sendWithRetry gives up after maxRetries attempts or when the service is
// closed, returning the last send error.
func (s *MailService) sendWithRetry(recipient string, data any, templateFile string) error {
	var err error

	for attempt := 0; attempt < s.retry.maxRetries; attempt++ {
		err = s.m.send(recipient, data, templateFile)
		if err == nil {
			return nil
		}

		var delay time.Duration
		if s.retry.baseDelay > 0 {
			delay = time.Duration(rand.Int63n(int64(s.retry.baseDelay) << uint(attempt)))
		}
		s.logger.Info("delaying email", slog.String("email", recipient), slog.Int("attempt", attempt), slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return err
		}
	}

	return err
}

func (s *MailService) Close() {
	s.cancel()
}
