package service

import (
	"time"

	"github.com/google/uuid"
)

type options struct {
	now   func() time.Time
	newID func() string
}

type Option func(*options)

// WithClock подменяет источник времени (тесты, бэктест-реплей).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDs подменяет генератор идентификаторов сигналов.
func WithIDs(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
