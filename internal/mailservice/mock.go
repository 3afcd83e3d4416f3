package mailservice

import (
	"bytes"
	"errors"
	"sync"

	"github.com/go-mail/mail/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
	"github.com/sushihentaime/teamblog/internal/common"
)

type MockTemplate struct {
	mock.Mock
}

func (m *MockTemplate) ParseTemplate(name string, data any) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer, error) {
	args := m.Called(name, data)
	return args.Get(0).(*bytes.Buffer), args.Get(1).(*bytes.Buffer), args.Get(2).(*bytes.Buffer), args.Error(3)
}

type MockDialer struct {
	mock.Mock
}

func (d *MockDialer) DialAndSend(m ...*mail.Message) error {
	args := d.Called(m)
	return args.Error(0)
}

type sentMail struct {
	Recipient string
	Template  string
	Data      any
}

// MockMailer records every send. Sends to an address in failFor always fail.
type MockMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	tries   map[string]int
	failFor map[string]bool
}

func NewMockMailer(failFor ...string) *MockMailer {
	m := &MockMailer{tries: map[string]int{}, failFor: map[string]bool{}}
	for _, email := range failFor {
		m.failFor[email] = true
	}
	return m
}

func (m *MockMailer) send(recipient string, data any, templateFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tries[recipient]++
	if m.failFor[recipient] {
		return errors.New("smtp: mailbox unavailable")
	}

	m.sent = append(m.sent, sentMail{Recipient: recipient, Template: templateFile, Data: data})
	return nil
}

func (m *MockMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func (m *MockMailer) Tries(recipient string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tries[recipient]
}

// MockMessageConsumer delivers the configured bodies once on any queue.
type MockMessageConsumer struct {
	mock.Mock
	bodies [][]byte
}

func (m *MockMessageConsumer) Consume(key common.BindingKey, exchange common.Exchange, queue common.Queue) (<-chan amqp.Delivery, error) {
	args := m.Called(key, exchange, queue)
	if err := args.Error(0); err != nil {
		return nil, err
	}

	msgs := make(chan amqp.Delivery)

	go func() {
		defer close(msgs)
		for _, body := range m.bodies {
			msgs <- amqp.Delivery{Body: body}
		}
	}()

	return msgs, nil
}

// MockLogger records info messages so tests can wait on them from another
// goroutine.
type MockLogger struct {
	mock.Mock
	mu    sync.Mutex
	infos []string
}

func (l *MockLogger) Infos() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.infos...)
}

func (l *MockLogger) Error(msg string, args ...any) {
	l.Called(msg, args)
}

func (l *MockLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
	l.Called(msg, args)
}
