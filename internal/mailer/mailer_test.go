package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

func newTestMailer(t *testing.T, send sendFunc) *Mailer {
	t.Helper()
	m, err := New(Config{Username: "servan@outlook.com", Password: "app-password"}, nil)
	require.NoError(t, err)
	m.send = send
	return m
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	m, err := New(Config{Username: "servan@outlook.com", Password: "pw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "smtp.office365.com:587", m.Addr())
	assert.Equal(t, "servan@outlook.com", m.cfg.From)

	_, err = New(Config{Username: "servan@outlook.com"}, nil)
	require.Error(t, err)
	_, err = New(Config{Username: "u", Password: "p", Port: 70000}, nil)
	require.Error(t, err)
}

func TestSendComposesMessage(t *testing.T) {
	t.Parallel()

	var (
		got     *email.Email
		gotAddr string
		gotTLS  *tls.Config
	)
	m := newTestMailer(t, func(e *email.Email, addr string, _ smtp.Auth, cfg *tls.Config) error {
		got, gotAddr, gotTLS = e, addr, cfg
		return nil
	})

	err := m.Send(context.Background(), "info@alpha.k12.tr", "Merhaba", "Öğrenciler için")
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "smtp.office365.com:587", gotAddr)
	assert.Equal(t, "smtp.office365.com", gotTLS.ServerName)
	assert.Equal(t, []string{"info@alpha.k12.tr"}, got.To)
	assert.Equal(t, "servan@outlook.com", got.From)

	raw, err := got.Bytes()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "charset=UTF-8"), string(raw))
}

func TestSendClassifiesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{name: "mailbox_busy", err: &textproto.Error{Code: 451, Msg: "try later"}, wantTransient: true},
		{name: "auth_rejected", err: &textproto.Error{Code: 535, Msg: "auth failed"}, wantTransient: false},
		{name: "other", err: errors.New("boom"), wantTransient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newTestMailer(t, func(*email.Email, string, smtp.Auth, *tls.Config) error { return tt.err })
			err := m.Send(context.Background(), "info@alpha.k12.tr", "s", "b")
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, school.IsTransient(err))
		})
	}
}

func TestSendHonorsCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	m := newTestMailer(t, func(*email.Email, string, smtp.Auth, *tls.Config) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Send(ctx, "info@alpha.k12.tr", "s", "b")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
