package mocks

import (
	"sync"
)

// MockMessageQueue records published messages for assertions.
type MockMessageQueue struct {
	mu        sync.Mutex
	published map[string][][]byte

	PublishFunc func(subject string, data []byte) error
}

func NewMockMessageQueue() *MockMessageQueue {
	return &MockMessageQueue{published: make(map[string][][]byte)}
}

func (m *MockMessageQueue) Publish(subject string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(subject, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[subject] = append(m.published[subject], data)
	return nil
}

func (m *MockMessageQueue) Subscribe(subject string, handler func(data []byte) error) error {
	return nil
}

func (m *MockMessageQueue) Close() error {
	return nil
}

// Published returns the messages recorded for a subject.
func (m *MockMessageQueue) Published(subject string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[subject]
}
