package notify

import (
	"context"
	"fmt"
	"sync"

	"fleetbot/internal/storage/storagetest"
	"fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

func newTestService() (*Service, *storagetest.Store, *fakeMessenger) {
	st := storagetest.New()
	m := newFakeMessenger()
	svc := New(st, m, "https://fleet.example.org", logx.Nop())
	return svc, st, m
}

// fakeMessenger records outbound calls and can fail selectively.
type fakeMessenger struct {
	mu sync.Mutex

	sends   []sentMessage
	edits   []editedMessage
	deletes []transport.MessageRef

	nextID  int
	sendErr map[string]error // keyed by channel id
	editErr map[string]error // keyed by message id
	names   map[string]string
	nameErr error
}

type sentMessage struct {
	ChannelID string
	Content   string
	Embed     *transport.Embed
	ReplyTo   *transport.MessageRef
	MessageID string
}

type editedMessage struct {
	Ref     transport.MessageRef
	Content *string
	Embed   *transport.Embed
}

var _ transport.Messenger = (*fakeMessenger)(nil)

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		sendErr: map[string]error{},
		editErr: map[string]error{},
		names:   map[string]string{},
	}
}

func (m *fakeMessenger) SendMessage(_ context.Context, channelID, content string, embed *transport.Embed, opt *transport.SendOptions) (transport.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sendErr[channelID]; err != nil {
		return transport.MessageRef{}, err
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	var replyTo *transport.MessageRef
	if opt != nil {
		replyTo = opt.ReplyTo
	}
	m.sends = append(m.sends, sentMessage{
		ChannelID: channelID,
		Content:   content,
		Embed:     embed,
		ReplyTo:   replyTo,
		MessageID: id,
	})
	return transport.MessageRef{ChannelID: channelID, MessageID: id}, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, ref transport.MessageRef, content *string, embed *transport.Embed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editErr[ref.MessageID]; err != nil {
		return err
	}
	m.edits = append(m.edits, editedMessage{Ref: ref, Content: content, Embed: embed})
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, ref transport.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, ref)
	return nil
}

func (m *fakeMessenger) MemberDisplayName(_ context.Context, _, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameErr != nil {
		return "", m.nameErr
	}
	if name, ok := m.names[userID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("unknown member %s", userID)
}
