package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/semaphore/internal/notify"
)

type sentEmbed struct {
	channelID string
	data      *discordgo.MessageSend
}

type mockSession struct {
	sent     []sentEmbed
	sendErrs []error // consumed in order; nil means success

	dmUsers []string
	dmErr   error

	closed bool
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	var err error
	if len(m.sendErrs) > 0 {
		err = m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	m.sent = append(m.sent, sentEmbed{channelID: channelID, data: data})
	return &discordgo.Message{ID: "1"}, nil
}

func (m *mockSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if m.dmErr != nil {
		return nil, m.dmErr
	}
	m.dmUsers = append(m.dmUsers, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (m *mockSession) Close() error {
	m.closed = true
	return nil
}

func rateLimitErr() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
}

func fastSender(m *mockSession) *Sender {
	return &Sender{sess: m, baseBackoff: time.Millisecond, maxBackoff: 10 * time.Millisecond}
}

func testMsg() notify.Message {
	return notify.Message{
		Title:    "Ticket PROJ-1 changed",
		Body:     "status: Open → Done",
		Severity: "info",
		Color:    notify.ColorInfo,
		Fields:   []notify.Field{{Name: "status", Value: "Open → Done", Short: true}},
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Opts{}); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := New(Opts{Session: &mockSession{}}); err != nil {
		t.Fatalf("injected session should not need a token: %v", err)
	}
}

func TestSendBuildsEmbed(t *testing.T) {
	m := &mockSession{}
	s := fastSender(m)

	if err := s.Send(context.Background(), "C1", testMsg()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(m.sent))
	}
	embeds := m.sent[0].data.Embeds
	if len(embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(embeds))
	}
	if embeds[0].Title != "Ticket PROJ-1 changed" {
		t.Fatalf("unexpected embed title: %s", embeds[0].Title)
	}
	if embeds[0].Color != 0x2196f3 {
		t.Fatalf("unexpected embed color: %#x", embeds[0].Color)
	}
	if len(embeds[0].Fields) != 1 || !embeds[0].Fields[0].Inline {
		t.Fatalf("unexpected embed fields: %+v", embeds[0].Fields)
	}
}

func TestSendRequiresChannel(t *testing.T) {
	s := fastSender(&mockSession{})
	if err := s.Send(context.Background(), "", testMsg()); err == nil {
		t.Fatal("expected error for empty channel")
	}
}

func TestSendDirect(t *testing.T) {
	m := &mockSession{}
	s := fastSender(m)

	if err := s.SendDirect(context.Background(), "u42", testMsg()); err != nil {
		t.Fatalf("send direct: %v", err)
	}
	if len(m.dmUsers) != 1 || m.dmUsers[0] != "u42" {
		t.Fatalf("unexpected dm users: %v", m.dmUsers)
	}
	if len(m.sent) != 1 || m.sent[0].channelID != "dm-u42" {
		t.Fatalf("message should go to the DM channel: %+v", m.sent)
	}
}

func TestRetryOnRateLimitRetries(t *testing.T) {
	m := &mockSession{sendErrs: []error{rateLimitErr(), nil}}
	s := fastSender(m)
	if err := s.Send(context.Background(), "C1", testMsg()); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if len(m.sent) != 1 {
		t.Fatalf("expected one successful send, got %d", len(m.sent))
	}
}

func TestRetryOnRateLimitNonRateLimitErrorFails(t *testing.T) {
	m := &mockSession{sendErrs: []error{errors.New("missing access")}}
	s := fastSender(m)
	if err := s.Send(context.Background(), "C1", testMsg()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetryOnRateLimitGivesUp(t *testing.T) {
	m := &mockSession{sendErrs: []error{rateLimitErr(), rateLimitErr(), rateLimitErr(), rateLimitErr(), rateLimitErr()}}
	s := fastSender(m)
	if err := s.Send(context.Background(), "C1", testMsg()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestHexColorToInt(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"2196f3", 0x2196f3},
		{"", 0x2196f3},
		{"not-a-color", 0x2196f3},
	}
	for _, tc := range cases {
		if got := hexColorToInt(tc.in); got != tc.want {
			t.Errorf("hexColorToInt(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestClose(t *testing.T) {
	m := &mockSession{}
	s := fastSender(m)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !m.closed {
		t.Fatal("session not closed")
	}
}
