package pipeline

import (
	"context"
	"time"

	"olcsync/internal/logging"
	"olcsync/internal/services"
	"olcsync/internal/site"
)

// List logs in and streams resolved listings to yield without downloading or
// touching any store. Returning false from yield stops the listing.
func (o *Orchestrator) List(ctx context.Context, opts Options, yield func(site.YearResult) bool) error {
	if err := opts.Scope.Validate(); err != nil {
		return err
	}
	user, pass, err := o.cfg.Credentials()
	if err != nil {
		return err
	}
	scopeKey := opts.Scope.Key()
	ctx = services.WithScope(ctx, scopeKey)
	r := &run{summary: &Summary{Scope: scopeKey}, logger: logging.WithContext(ctx, o.logger), scopeKey: scopeKey}
	if err := o.authenticate(ctx, r, user, pass); err != nil {
		return err
	}
	lister, err := site.New(site.Config{
		BaseURL:         o.cfg.OLC.BaseURL,
		Session:         r.authn,
		RequestInterval: time.Duration(o.cfg.OLC.RequestInterval) * time.Second,
		Logger:          o.logger,
		Now:             o.now,
	})
	if err != nil {
		return err
	}
	for result := range lister.Years(ctx, site.Query{Scope: opts.Scope, Years: opts.Years, MinScore: opts.MinScore}) {
		if !yield(result) {
			break
		}
	}
	return ctx.Err()
}
