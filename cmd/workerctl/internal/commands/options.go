package commands

import (
	"context"
	"time"

	"hydrogen.im/hydrogen-worker/cmd/workerctl/internal/session"
)

type Options struct {
	Addr        string
	Timeout     time.Duration
	AdminSecret string
}

func (o *Options) withSession(fn func(ctx context.Context, s *session.Session) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()
	var token string
	if o.AdminSecret != "" {
		var err error
		if token, err = AdminToken(o.AdminSecret, time.Now()); err != nil {
			return err
		}
	}
	s, err := session.Dial(ctx, o.Addr, token)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
